package tickets

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/boombuler/barcode/qr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evenia/backend/internal/models"
)

func testRegistration() *models.Registration {
	return &models.Registration{
		ID:      uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		UserID:  uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
		EventID: uuid.MustParse("00000000-0000-0000-0000-0000000000ee"),
		Status:  models.StatusPending,
		QRCode:  "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567",
	}
}

func TestNewCode(t *testing.T) {
	alnum := regexp.MustCompile(`^[A-Z2-7]+$`)
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.Regexp(t, alnum, code)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestBuildPayload(t *testing.T) {
	reg := testRegistration()
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	p, err := BuildPayload(reg, issued)
	require.NoError(t, err)
	assert.Equal(t, reg.QRCode, p.Code)
	assert.Equal(t, reg.ID, p.RegistrationID)
	assert.Equal(t, reg.UserID, p.UserID)
	assert.Equal(t, reg.EventID, p.EventID)
	assert.Equal(t, issued.UnixMilli(), p.IssuedAt)
	assert.Equal(t, PayloadVersion, p.Version)

	reg.QRCode = ""
	_, err = BuildPayload(reg, issued)
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestPayloadMarshalIsKeyOrdered(t *testing.T) {
	p, err := BuildPayload(testRegistration(), time.UnixMilli(1700000000000))
	require.NoError(t, err)

	text, err := p.Marshal()
	require.NoError(t, err)
	want := `{"code":"ABCDEFGHIJKLMNOPQRSTUVWXYZ234567",` +
		`"eventId":"00000000-0000-0000-0000-0000000000ee",` +
		`"issuedAt":1700000000000,` +
		`"registrationId":"00000000-0000-0000-0000-000000000001",` +
		`"userId":"00000000-0000-0000-0000-0000000000aa","v":1}`
	assert.Equal(t, want, string(text))

	back, err := Decode(string(text))
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not json", `{"code":""}`, `{"code":"X","v":2}`} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, ErrInvalidPayload, in)
	}
}

func TestCodeFromScan(t *testing.T) {
	p, err := BuildPayload(testRegistration(), time.Now())
	require.NoError(t, err)
	text, err := p.Marshal()
	require.NoError(t, err)

	tests := []struct {
		name    string
		scanned string
		want    string
	}{
		{"full payload", string(text), p.Code},
		{"bare code", "ABC123", "ABC123"},
		{"bare code with whitespace", "  ABC123\n", "ABC123"},
		{"broken json is kept verbatim", `{"code":`, `{"code":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeFromScan(tt.scanned))
		})
	}
}

func TestRendererPNG(t *testing.T) {
	r := NewRenderer(300, 10)
	p, err := BuildPayload(testRegistration(), time.Now())
	require.NoError(t, err)

	raw, err := r.PNG(p)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	// quiet margin stays white
	for _, pt := range [][2]int{{0, 0}, {299, 0}, {0, 299}, {299, 299}, {5, 150}} {
		cr, cg, cb, _ := img.At(pt[0], pt[1]).RGBA()
		assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{cr, cg, cb}, "pixel %v", pt)
	}
}

func TestRendererWholePixelModules(t *testing.T) {
	p, err := BuildPayload(testRegistration(), time.Now())
	require.NoError(t, err)
	text, err := p.Marshal()
	require.NoError(t, err)
	code, err := qr.Encode(string(text), qr.H, qr.Auto)
	require.NoError(t, err)
	modules := code.Bounds().Dx()

	for _, tc := range []struct{ size, margin int }{{300, 10}, {400, 16}, {257, 3}} {
		r := NewRenderer(tc.size, tc.margin)
		img, err := r.Image(p)
		require.NoError(t, err)
		require.Equal(t, tc.size, img.Bounds().Dx())

		// bounding box of dark pixels; finder patterns sit in three corners
		minX, minY, maxX, maxY := tc.size, tc.size, -1, -1
		for y := 0; y < tc.size; y++ {
			for x := 0; x < tc.size; x++ {
				if cr, _, _, _ := img.At(x, y).RGBA(); cr < 0x8000 {
					minX, minY = min(minX, x), min(minY, y)
					maxX, maxY = max(maxX, x), max(maxY, y)
				}
			}
		}
		side := maxX - minX + 1
		assert.Equal(t, modules*((tc.size-2*tc.margin)/modules), side, "size %d", tc.size)
		assert.Equal(t, side, maxY-minY+1)
		assert.GreaterOrEqual(t, minX, tc.margin)
		assert.GreaterOrEqual(t, minY, tc.margin)
		assert.GreaterOrEqual(t, tc.size-1-maxX, tc.margin)
		assert.GreaterOrEqual(t, tc.size-1-maxY, tc.margin)
		assert.LessOrEqual(t, (tc.size-1-maxX)-minX, 1, "code is centered")
	}
}

func TestRendererCanvasTooSmall(t *testing.T) {
	p, err := BuildPayload(testRegistration(), time.Now())
	require.NoError(t, err)
	_, err = NewRenderer(40, 2).Image(p)
	assert.Error(t, err)
}

func TestRendererDataURL(t *testing.T) {
	r := NewRenderer(0, -1)
	assert.Equal(t, DefaultSize, r.Size)
	assert.Equal(t, DefaultMargin, r.Margin)

	p, err := BuildPayload(testRegistration(), time.Now())
	require.NoError(t, err)
	url, err := r.DataURL(p)
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}
