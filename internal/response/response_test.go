package response

import (
	"bytes"
	"testing"
)

// TestSplitMergeRoundTrip checks that Merge(r0, Split(r0)) == r0 for every
// Response variant.
func TestSplitMergeRoundTrip(t *testing.T) {
	img, err := NewImage([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, 2, "")
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}

	cases := []Response{
		String("hello world"),
		Bytes([]byte("raw payload")),
		FilesOf(
			File{ProposedExtension: "txt", Contents: []byte("A")},
			File{ProposedExtension: "json", Contents: []byte("{}")},
		),
		ImagesOf(img),
	}

	for _, original := range cases {
		r := original
		parts := Split(&r)
		if err := Merge(&r, parts); err != nil {
			t.Fatalf("Merge: %v", err)
		}
		assertEqualResponse(t, original, r)
	}
}

func assertEqualResponse(t *testing.T, want, got Response) {
	t.Helper()
	if want.Kind != got.Kind {
		t.Fatalf("kind: want %v got %v", want.Kind, got.Kind)
	}
	switch want.Kind {
	case KindString:
		if want.Text != got.Text {
			t.Fatalf("text: want %q got %q", want.Text, got.Text)
		}
	case KindBytes:
		if !bytes.Equal(want.Bytes, got.Bytes) {
			t.Fatalf("bytes: want % x got % x", want.Bytes, got.Bytes)
		}
	case KindFiles:
		if len(want.Files) != len(got.Files) {
			t.Fatalf("files: want %d got %d", len(want.Files), len(got.Files))
		}
		for i := range want.Files {
			if !bytes.Equal(want.Files[i].Contents, got.Files[i].Contents) {
				t.Fatalf("file %d contents mismatch", i)
			}
		}
	case KindImages:
		if len(want.Images) != len(got.Images) {
			t.Fatalf("images: want %d got %d", len(want.Images), len(got.Images))
		}
		for i := range want.Images {
			if !bytes.Equal(want.Images[i].Pixels, got.Images[i].Pixels) {
				t.Fatalf("image %d pixels mismatch", i)
			}
		}
	}
}

// TestImageInvariant checks NewImage's Width/Height/pixelCount invariant.
func TestImageInvariant(t *testing.T) {
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	img, err := NewImage(pixels, 2, "")
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if img.Height != 2 {
		t.Fatalf("height: want 2 got %d", img.Height)
	}
	if (len(pixels)/4)%img.Width != 0 {
		t.Fatal("pixel count must be a multiple of width")
	}
}

func TestImageInvariantRejectsBadInput(t *testing.T) {
	if _, err := NewImage([]byte{1, 2, 3}, 1, ""); err == nil {
		t.Fatal("expected error for non-multiple-of-4 pixel stream")
	}
	if _, err := NewImage([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0, ""); err == nil {
		t.Fatal("expected error for non-positive width")
	}
	if _, err := NewImage([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 3, ""); err == nil {
		t.Fatal("expected error when pixel count is not a multiple of width")
	}
}

func TestNumAttachments(t *testing.T) {
	cases := []struct {
		name string
		r    Response
		want int
	}{
		{"string", String("x"), 0},
		{"bytes", Bytes([]byte("x")), 1},
		{"two files", FilesOf(File{}, File{}), 2},
		{"one image", ImagesOf(Image{}), 1},
	}
	for _, c := range cases {
		if got := c.r.NumAttachments(); got != c.want {
			t.Errorf("%s: NumAttachments() = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestMergeRejectsWrongAttachmentCount(t *testing.T) {
	r := Bytes([]byte("x"))
	Split(&r)
	if err := Merge(&r, [][]byte{{1}, {2}}); err == nil {
		t.Fatal("expected error for wrong attachment count")
	}
}
