package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/course"
)

// publishCourse flips the published flag of a course identified by id or slug.
func (cli *commandLine) publishCourse(ref string, published bool) error {
	ctx := context.Background()
	ref = core.CleanString(ref, true /* lower */)

	filter := course.GetFilter{Slug: ref}
	if _, err := uuid.Parse(ref); err == nil {
		filter = course.GetFilter{ID: ref}
	}
	crs, err := cli.crsRepo.GetCourse(ctx, filter)
	if err != nil {
		return err
	}

	crs.IsPublished = published
	crs.UpdatedAt = time.Now().UTC()
	if _, err := cli.crsRepo.UpdateCourse(ctx, crs); err != nil {
		return err
	}
	return nil
}
