package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/yungbote/pyplots-catalog/internal/pkg/logger"
	"github.com/yungbote/pyplots-catalog/internal/platform/gcp"
)

func TestClassifyStorageProviderBootstrapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StorageProviderBootstrapErrorCode
	}{
		{"invalid mode", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode}, StorageProviderBootstrapErrorInvalidMode},
		{"missing emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingEmulatorHost}, StorageProviderBootstrapErrorMissingEmulatorHost},
		{"invalid emulator host", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidEmulatorHost}, StorageProviderBootstrapErrorInvalidEmulatorHost},
		{"missing bucket", &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorMissingBucket}, StorageProviderBootstrapErrorMissingBucket},
		{"connect failed", errors.New("dial tcp: connection refused"), StorageProviderBootstrapErrorConnectFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStorageProviderBootstrapError(gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeGCS}, tc.err)
			var got *StorageProviderBootstrapError
			if !errors.As(err, &got) {
				t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
			}
			if got.Code != tc.want {
				t.Fatalf("code: want=%q got=%q", tc.want, got.Code)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause not preserved")
			}
		})
	}
}

func TestResolveBucketServiceInvalidMode(t *testing.T) {
	_, err := resolveBucketService(context.Background(), logger.Nop(), Config{
		Previews: PreviewsConfig{StorageMode: "s3", Bucket: "pyplots-previews"},
	})
	assertBootstrapCode(t, err, StorageProviderBootstrapErrorInvalidMode)
}

func TestResolveBucketServiceGCSMode(t *testing.T) {
	stubBucketService(t)

	var captured gcp.BucketConfig
	expected := &testBucketService{}
	newBucketService = func(_ context.Context, _ *logger.Logger, cfg gcp.BucketConfig) (gcp.BucketService, error) {
		captured = cfg
		return expected, nil
	}

	got, err := resolveBucketService(context.Background(), logger.Nop(), Config{
		Previews: PreviewsConfig{StorageMode: "gcs", Bucket: "pyplots-previews", CDNDomain: "cdn.pyplots.ai"},
	})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if got != expected {
		t.Fatalf("bucket: expected stub bucket instance")
	}
	if captured.Storage.Mode != gcp.ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", gcp.ObjectStorageModeGCS, captured.Storage.Mode)
	}
	if captured.Name != "pyplots-previews" || captured.CDNDomain != "cdn.pyplots.ai" {
		t.Fatalf("bucket config not forwarded: %+v", captured)
	}
}

func TestResolveBucketServiceEmulatorFallback(t *testing.T) {
	stubBucketService(t)

	var captured gcp.BucketConfig
	newBucketService = func(_ context.Context, _ *logger.Logger, cfg gcp.BucketConfig) (gcp.BucketService, error) {
		captured = cfg
		return &testBucketService{}, nil
	}

	_, err := resolveBucketService(context.Background(), logger.Nop(), Config{
		Previews: PreviewsConfig{Bucket: "pyplots-previews", EmulatorHost: "http://fake-gcs:4443"},
	})
	if err != nil {
		t.Fatalf("resolveBucketService: %v", err)
	}
	if captured.Storage.Mode != gcp.ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", gcp.ObjectStorageModeGCSEmulator, captured.Storage.Mode)
	}
	if !captured.Storage.CompatibilityFallback {
		t.Fatalf("expected compatibility fallback to be recorded")
	}
}

func TestResolveBucketServiceMissingEmulatorHost(t *testing.T) {
	_, err := resolveBucketService(context.Background(), logger.Nop(), Config{
		Previews: PreviewsConfig{StorageMode: "gcs_emulator", Bucket: "pyplots-previews"},
	})
	assertBootstrapCode(t, err, StorageProviderBootstrapErrorMissingEmulatorHost)
}

func TestResolveBucketServiceInvalidEmulatorHost(t *testing.T) {
	_, err := resolveBucketService(context.Background(), logger.Nop(), Config{
		Previews: PreviewsConfig{StorageMode: "gcs_emulator", EmulatorHost: "not-a-url", Bucket: "pyplots-previews"},
	})
	assertBootstrapCode(t, err, StorageProviderBootstrapErrorInvalidEmulatorHost)
}

func TestResolveBucketServiceMissingBucket(t *testing.T) {
	_, err := resolveBucketService(context.Background(), logger.Nop(), Config{
		Previews: PreviewsConfig{StorageMode: "gcs"},
	})
	assertBootstrapCode(t, err, StorageProviderBootstrapErrorMissingBucket)
}

func stubBucketService(t *testing.T) {
	t.Helper()
	orig := newBucketService
	t.Cleanup(func() {
		newBucketService = orig
	})
}

func assertBootstrapCode(t *testing.T, err error, want StorageProviderBootstrapErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("resolveBucketService: expected error, got nil")
	}
	var got *StorageProviderBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected StorageProviderBootstrapError, got=%T", err)
	}
	if got.Code != want {
		t.Fatalf("code: want=%q got=%q", want, got.Code)
	}
}

type testBucketService struct{}

func (t *testBucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
	return nil
}

func (t *testBucketService) GetObjectAttrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	return &gcp.ObjectAttrs{}, nil
}

func (t *testBucketService) GetPublicURL(key string) string {
	return ""
}

func (t *testBucketService) Close() error { return nil }
