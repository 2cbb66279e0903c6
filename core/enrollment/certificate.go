package enrollment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
)

const serialSalt = "darasa.core.enrollment.certificate"

var serialEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// MakeSerial mints a certificate serial of the form DRS-XXXXXXXX-SSSSSSSSSS.
// The last segment is an HMAC over the enrollment id and the middle segment,
// so a serial on record can be checked against the enrollment it was issued for.
func MakeSerial(enrollmentID string, conf *core.Config) string {
	nonce := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("DRS-%s-%s", nonce, serialSignature(enrollmentID, nonce, conf))
}

// CheckSerial reports whether serial was minted for enrollmentID.
func CheckSerial(serial, enrollmentID string, conf *core.Config) bool {
	parts := strings.Split(serial, "-")
	if len(parts) != 3 || parts[0] != "DRS" {
		return false
	}
	want := serialSignature(enrollmentID, parts[1], conf)
	return hmac.Equal([]byte(parts[2]), []byte(want))
}

func serialSignature(enrollmentID, nonce string, conf *core.Config) string {
	mac := hmac.New(sha256.New, []byte(serialSalt+conf.SecretKey))
	mac.Write([]byte(enrollmentID + nonce))
	sig := serialEncoding.EncodeToString(mac.Sum(nil))
	return sig[:10]
}
