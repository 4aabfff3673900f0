package gcp

import (
	"testing"
)

func TestResolveObjectStoragePublicBaseURLGCSDefault(t *testing.T) {
	baseURL, source, err := resolveObjectStoragePublicBaseURL("", ObjectStorageConfig{
		Mode: ObjectStorageModeGCS,
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "" {
		t.Fatalf("baseURL: want empty got=%q", baseURL)
	}
	if source != "gcs_default" {
		t.Fatalf("source: want=%q got=%q", "gcs_default", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEmulatorFallback(t *testing.T) {
	baseURL, source, err := resolveObjectStoragePublicBaseURL("", ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://fake-gcs:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://fake-gcs:4443", baseURL)
	}
	if source != "emulator_host" {
		t.Fatalf("source: want=%q got=%q", "emulator_host", source)
	}
}

func TestResolveObjectStoragePublicBaseURLOverride(t *testing.T) {
	baseURL, source, err := resolveObjectStoragePublicBaseURL("http://localhost:4443/", ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://localhost:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://localhost:4443", baseURL)
	}
	if source != "public_base_url" {
		t.Fatalf("source: want=%q got=%q", "public_base_url", source)
	}
}

func TestResolveObjectStoragePublicBaseURLInvalid(t *testing.T) {
	_, _, err := resolveObjectStoragePublicBaseURL("localhost:4443", ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err == nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: expected error, got nil")
	}
}

func TestGetPublicURLGCSDefault(t *testing.T) {
	bs := &bucketService{bucket: "pyplots-previews"}

	got := bs.GetPublicURL("scatter-basic/matplotlib/default/plot.png")
	want := "https://storage.googleapis.com/pyplots-previews/scatter-basic/matplotlib/default/plot.png"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetPublicURLUsesCDNDomain(t *testing.T) {
	bs := &bucketService{bucket: "pyplots-previews", cdnDomain: "cdn.pyplots.example"}

	got := bs.GetPublicURL("box-basic/seaborn/default/plot.png")
	want := "https://cdn.pyplots.example/box-basic/seaborn/default/plot.png"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetPublicURLUsesPublicBaseURL(t *testing.T) {
	bs := &bucketService{bucket: "pyplots-previews", publicBaseURL: "http://localhost:4443"}

	got := bs.GetPublicURL("/box-basic/seaborn/default/plot.png")
	want := "http://localhost:4443/pyplots-previews/box-basic/seaborn/default/plot.png"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetPublicURLUsesEmulatorMediaEndpoint(t *testing.T) {
	bs := &bucketService{
		storageMode:  ObjectStorageModeGCSEmulator,
		emulatorHost: "http://fake-gcs:4443",
		bucket:       "pyplots-previews",
	}

	got := bs.GetPublicURL("/area-basic/plotly/default/plot.png")
	want := "http://fake-gcs:4443/storage/v1/b/pyplots-previews/o/area-basic%2Fplotly%2Fdefault%2Fplot.png?alt=media"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"a/plot.png":  "image/png",
		"a/plot.HTML": "text/html; charset=utf-8",
		"a/plot.svg":  "image/svg+xml",
		"a/plot.bin":  "",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
