package enrollment

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
)

func TestMakeSerial(t *testing.T) {
	conf := core.NewTestConfig()
	enrID := uuid.New().String()

	serial := MakeSerial(enrID, conf)

	parts := strings.Split(serial, "-")
	if len(parts) != 3 {
		t.Fatalf("MakeSerial() = %q; want 3 dash-separated segments", serial)
	}
	if parts[0] != "DRS" {
		t.Errorf("prefix = %q; want %q", parts[0], "DRS")
	}
	if len(parts[1]) != 8 {
		t.Errorf("len(nonce) = %d; want 8", len(parts[1]))
	}
	if len(parts[2]) != 10 {
		t.Errorf("len(signature) = %d; want 10", len(parts[2]))
	}
	if serial != strings.ToUpper(serial) {
		t.Errorf("MakeSerial() = %q; want all uppercase", serial)
	}

	// the nonce makes serials unique per issuance
	if again := MakeSerial(enrID, conf); again == serial {
		t.Errorf("MakeSerial() minted the same serial twice: %q", serial)
	}
}

func TestCheckSerial(t *testing.T) {
	conf := core.NewTestConfig()
	enrID := uuid.New().String()
	serial := MakeSerial(enrID, conf)

	tests := []struct {
		name   string
		serial string
		enrID  string
		want   bool
	}{
		{name: "minted serial checks out", serial: serial, enrID: enrID, want: true},
		{name: "wrong enrollment", serial: serial, enrID: uuid.New().String()},
		{name: "wrong prefix", serial: "LOL" + serial[3:], enrID: enrID},
		{name: "tampered signature", serial: serial[:len(serial)-10] + "AAAAAAAAAA", enrID: enrID},
		{name: "missing segments", serial: "DRS-DEADBEEF", enrID: enrID},
		{name: "empty serial", enrID: enrID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckSerial(tt.serial, tt.enrID, conf); got != tt.want {
				t.Errorf("CheckSerial(%q) = %v; want %v", tt.serial, got, tt.want)
			}
		})
	}
}
