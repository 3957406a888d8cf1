package vision

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mirror-persona/backend/internal/model/persona"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm"
	"github.com/zhouzirui/mirror-persona/backend/internal/service/llm/llmtest"
)

var testConfig = Config{MaxImageBytes: 1 << 20, MaxDimension: 64, JPEGQuality: 80}

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 200})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestService(t *testing.T, steps ...llmtest.Step) (*Service, *llmtest.Model) {
	t.Helper()
	m := llmtest.NewModel(steps...)
	svc, err := NewService(context.Background(), m, testConfig, zerolog.Nop())
	require.NoError(t, err)
	return svc, m
}

func TestNormalizeImageDownscalesToJPEG(t *testing.T) {
	out, err := NormalizeImage(pngFixture(t, 200, 100), testConfig)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestNormalizeImageKeepsSmallImages(t *testing.T) {
	out, err := NormalizeImage(pngFixture(t, 20, 40), testConfig)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestNormalizeImageRejects(t *testing.T) {
	_, err := NormalizeImage(nil, testConfig)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = NormalizeImage(make([]byte, 10), Config{MaxImageBytes: 5})
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = NormalizeImage([]byte("definitely not an image"), testConfig)
	assert.Error(t, err)
}

// hugePNG is a tiny file whose IHDR claims w×h pixels.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()

	// 8 字节签名之后是 IHDR：长度(4) 类型(4) 数据(13) CRC(4)。
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestNormalizeImageRejectsHugeDimensions(t *testing.T) {
	data := hugePNG(t, 20000, 20000)
	require.Less(t, len(data), 1024)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 20000, cfg.Width)

	_, err = NormalizeImage(data, testConfig)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestNormalizeImageHonorsPixelLimit(t *testing.T) {
	limited := testConfig
	limited.MaxPixels = 100

	_, err := NormalizeImage(pngFixture(t, 20, 20), limited)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = NormalizeImage(pngFixture(t, 10, 10), limited)
	assert.NoError(t, err)
}

func TestAnalyzeSkipsModelForHugeImage(t *testing.T) {
	svc, m := newTestService(t, llmtest.Text(`{"emotion":"happy","gender":"Man"}`))

	out := svc.Analyze(context.Background(), hugePNG(t, 20000, 20000))
	assert.Equal(t, persona.UnknownAnalysis(), out.Analysis)
	assert.Contains(t, out.Warning, "Image analysis failed: ")
	assert.Equal(t, 0, m.Calls())
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		input string
		want  Reply
	}{
		{input: `{"emotion":"happy","gender":"Man"}`, want: Reply{Emotion: "happy", Gender: "Man"}},
		{input: "```json\n{\"emotion\":\" Sad \",\"gender\":\"Woman\"}\n```", want: Reply{Emotion: "sad", Gender: "Woman"}},
		{input: "```\n{\"emotion\":\"fear\",\"gender\":\"Other\"}```", want: Reply{Emotion: "fear", Gender: "Other"}},
		{input: `  {"emotion":"neutral","gender":"man","extra":1}  `, want: Reply{Emotion: "neutral", Gender: "man"}},
		{input: "```json{\"emotion\":\"happy\",\"gender\":\"Man\"}```", want: Reply{Emotion: "happy", Gender: "Man"}},
		{input: "```json {\"emotion\":\"happy\",\"gender\":\"Man\"} ```", want: Reply{Emotion: "happy", Gender: "Man"}},
		{input: "```{\"emotion\":\"angry\",\"gender\":\"Woman\"}```", want: Reply{Emotion: "angry", Gender: "Woman"}},
	}
	for _, tc := range cases {
		got, err := ParseReply(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got, tc.input)
	}
}

func TestParseReplyErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"the person looks happy",
		`{"emotion":"happy"}`,
		`{"emotion":"happy","gender":"Man"} trailing`,
		`{"emotion":"happy","gender":"Man"}{"emotion":"sad","gender":"Man"}`,
		`{"emotion":3,"gender":"Man"}`,
	} {
		_, err := ParseReply(input)
		assert.Error(t, err, input)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	svc, m := newTestService(t, llmtest.Text("```json\n{\"emotion\":\"Happy\",\"gender\":\"Woman\"}\n```"))

	out := svc.Analyze(context.Background(), pngFixture(t, 10, 10))
	assert.Equal(t, persona.Analysis{DominantEmotion: "happy", Gender: "Woman"}, out.Analysis)
	assert.Empty(t, out.Warning)

	require.Equal(t, 1, m.Calls())
	call := m.Call(0)
	require.Len(t, call, 1)
	require.Len(t, call[0].MultiContent, 2)

	imagePart := call[0].MultiContent[0]
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, imagePart.Type)
	mime, data, err := llm.DecodeDataURL(imagePart.ImageURL.URL)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	_, err = jpeg.DecodeConfig(bytes.NewReader(data))
	assert.NoError(t, err)

	assert.Equal(t, Instruction, call[0].MultiContent[1].Text)
}

func TestAnalyzeDegradesPerField(t *testing.T) {
	svc, _ := newTestService(t, llmtest.Text(`{"emotion":"joyful","gender":"Woman"}`))

	out := svc.Analyze(context.Background(), pngFixture(t, 10, 10))
	assert.Equal(t, persona.Unknown, out.Analysis.DominantEmotion)
	assert.Equal(t, "Woman", out.Analysis.Gender)
	assert.Contains(t, out.Warning, "joyful")
}

func TestAnalyzeGenderIsCaseSensitive(t *testing.T) {
	svc, _ := newTestService(t, llmtest.Text(`{"emotion":"sad","gender":"woman"}`))

	out := svc.Analyze(context.Background(), pngFixture(t, 10, 10))
	assert.Equal(t, "sad", out.Analysis.DominantEmotion)
	assert.Equal(t, persona.Unknown, out.Analysis.Gender)
}

func TestAnalyzeFailuresFallBackToUnknown(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		svc, _ := newTestService(t, llmtest.Fail(errors.New("quota exceeded")))
		out := svc.Analyze(context.Background(), pngFixture(t, 10, 10))
		assert.Equal(t, persona.UnknownAnalysis(), out.Analysis)
		assert.Contains(t, out.Warning, "Image analysis failed:")
		assert.Contains(t, out.Warning, "quota exceeded")
	})

	t.Run("unparseable reply", func(t *testing.T) {
		svc, _ := newTestService(t, llmtest.Text("I think they look happy"))
		out := svc.Analyze(context.Background(), pngFixture(t, 10, 10))
		assert.Equal(t, persona.UnknownAnalysis(), out.Analysis)
		assert.Contains(t, out.Warning, "Image analysis failed:")
	})

	t.Run("bad image skips the model", func(t *testing.T) {
		svc, m := newTestService(t)
		out := svc.Analyze(context.Background(), []byte("nope"))
		assert.Equal(t, persona.UnknownAnalysis(), out.Analysis)
		assert.Contains(t, out.Warning, "Image analysis failed:")
		assert.Equal(t, 0, m.Calls())
	})
}
