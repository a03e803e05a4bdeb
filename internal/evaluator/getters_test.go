/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func redCircleImage(size, radius int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.White)
		}
	}
	cx, cy := size/2, size/2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, color.RGBA{R: 220, G: 20, B: 20, A: 255})
			}
		}
	}
	return img
}

func TestGetterFileExistsQueriesTheFileExistsEndpoint(t *testing.T) {
	env := &fakeEnv{queryResults: map[string]interface{}{"file_exists": true}}
	r := NewRegistry()
	fn, _ := r.getter("file_exists")
	v, err := fn(context.Background(), specFor(t, "file_exists", `,"path":"C:/Users/user/Desktop/note.txt"`), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != true {
		t.Fatalf("expected true, got %v", v)
	}
}

func TestGetterImageContentDimensionsCheck(t *testing.T) {
	img := redCircleImage(40, 10)
	env := &fakeEnv{files: map[string][]byte{"shape.png": encodePNG(t, img)}}
	r := NewRegistry()
	fn, _ := r.getter("image_content")

	v, err := fn(context.Background(), specFor(t, "image_content", `,"path":"shape.png","check":"dimensions","width":40,"height":40`), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != true {
		t.Fatalf("expected dimensions match, got %v", v)
	}

	v, err = fn(context.Background(), specFor(t, "image_content", `,"path":"shape.png","check":"dimensions","width":10,"height":10`), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != false {
		t.Fatalf("expected dimensions mismatch, got %v", v)
	}
}

func TestGetterImageContentRedCircleDetection(t *testing.T) {
	withCircle := redCircleImage(50, 15)
	blank := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			blank.Set(x, y, color.White)
		}
	}

	env := &fakeEnv{files: map[string][]byte{
		"circle.png": encodePNG(t, withCircle),
		"blank.png":  encodePNG(t, blank),
	}}
	r := NewRegistry()
	fn, _ := r.getter("image_content")

	v, err := fn(context.Background(), specFor(t, "image_content", `,"path":"circle.png"`), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != true {
		t.Fatalf("expected a red circle to be detected, got %v", v)
	}

	v, err = fn(context.Background(), specFor(t, "image_content", `,"path":"blank.png"`), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != false {
		t.Fatalf("expected no red circle on a blank image, got %v", v)
	}
}

func TestHasRedCircleRejectsNonCircularRedRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 60, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.White)
		}
	}
	// A wide red bar is not a circle: width/height ratio is far from 1.
	for y := 2; y < 18; y++ {
		for x := 2; x < 58; x++ {
			img.Set(x, y, color.RGBA{R: 220, G: 10, B: 10, A: 255})
		}
	}
	if hasRedCircle(img) {
		t.Fatalf("expected a red bar to fail the circularity check")
	}
}

func TestGetterWorldClockThreadsCityAndCountry(t *testing.T) {
	var gotPayload map[string]interface{}
	env := &recordingEnv{fakeEnv: fakeEnv{queryResults: map[string]interface{}{"check_if_world_clock_exists": true}}, record: &gotPayload}
	r := NewRegistry()
	fn, _ := r.getter("world_clock")

	v, err := fn(context.Background(), specFor(t, "world_clock", `,"city":"Munich","country":"Germany"`), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != true {
		t.Fatalf("expected true, got %v", v)
	}
	if gotPayload["city"] != "Munich" || gotPayload["country"] != "Germany" {
		t.Fatalf("expected city and country both forwarded, got %+v", gotPayload)
	}
}

// recordingEnv wraps fakeEnv to capture the payload passed to Query, since
// fakeEnv only keys off the endpoint name.
type recordingEnv struct {
	fakeEnv
	record *map[string]interface{}
}

func (r *recordingEnv) Query(ctx context.Context, endpoint string, payload, out interface{}) error {
	raw, _ := json.Marshal(payload)
	_ = json.Unmarshal(raw, r.record)
	return r.fakeEnv.Query(ctx, endpoint, payload, out)
}
