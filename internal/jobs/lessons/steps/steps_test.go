package steps

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/data/repos/testutil"
	types "github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/jobs/lessons/lessontest"
	"github.com/NotARoomba/canvas/internal/platform/elevenlabs"
	"github.com/NotARoomba/canvas/internal/platform/openrouter"
	"github.com/NotARoomba/canvas/internal/services"
)

func newAssets(t *testing.T) services.AssetService {
	t.Helper()
	log := testutil.Logger(t)
	svc, err := services.NewAssetService(log, repos.NewAssetRepo(testutil.DB(t), log), nil, services.AssetStorageDB)
	require.NoError(t, err)
	return svc
}

func TestGenerateOutline(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)

	t.Run("decodes typed outline", func(t *testing.T) {
		chat := lessontest.NewChat().On("outline", func(req openrouter.Request) (any, error) {
			return lessontest.OutlineReply("Fotosíntesis", [2]string{"A", "text"}, [2]string{"B", " Image "}), nil
		})
		out, err := GenerateOutline(ctx, OutlineDeps{Log: log, Chat: chat, Model: "m"}, OutlineInput{Topic: "fotosíntesis", Difficulty: types.DifficultyUniversity})
		require.NoError(t, err)
		require.Len(t, out.Outline, 2)
		assert.Equal(t, "Fotosíntesis", out.Title)
		assert.Equal(t, types.MediaKindImage, out.Outline[1].MediaKind)
		assert.Equal(t, "p1", out.Outline[0].Instruction)
		assert.Equal(t, "s2", out.Outline[1].NarrationScript)

		calls := chat.CallsFor("outline")
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Prompt, "'fotosíntesis'")
		assert.Contains(t, calls[0].Prompt, "University")
	})

	t.Run("rejects empty and unknown kinds", func(t *testing.T) {
		cases := map[string]any{
			"empty":   map[string]any{"title": "x", "description": "y", "outline": []any{}},
			"unknown": lessontest.OutlineReply("x", [2]string{"A", "video"}),
			"garbage": "{not json",
		}
		for name, reply := range cases {
			reply := reply
			t.Run(name, func(t *testing.T) {
				chat := lessontest.NewChat().On("outline", func(openrouter.Request) (any, error) { return reply, nil })
				_, err := GenerateOutline(ctx, OutlineDeps{Log: log, Chat: chat}, OutlineInput{Topic: "t"})
				var invalid *openrouter.ErrInvalidResponse
				require.ErrorAs(t, err, &invalid)
			})
		}
	})

	t.Run("missing credential propagates", func(t *testing.T) {
		chat := lessontest.NewChat().On("outline", func(openrouter.Request) (any, error) { return nil, openrouter.ErrMissingAPIKey })
		_, err := GenerateOutline(ctx, OutlineDeps{Log: log, Chat: chat}, OutlineInput{Topic: "t"})
		require.ErrorIs(t, err, openrouter.ErrMissingAPIKey)
	})
}

func TestResolveEncyclopedia(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	wiki := &lessontest.Wiki{Images: map[string][]string{"Fotosíntesis": {"Hoja_verde.jpg"}}}

	chat := lessontest.NewChat().On("wikipedia_ref", func(openrouter.Request) (any, error) {
		return map[string]any{"wikipedia_url": "https://es.wikipedia.org/wiki/Fotos%C3%ADntesis"}, nil
	})
	out, err := ResolveEncyclopedia(ctx, EncyclopediaDeps{Log: log, Chat: chat, Wiki: wiki}, "fotosíntesis")
	require.NoError(t, err)
	assert.Equal(t, "https://es.wikipedia.org/wiki/Fotos%C3%ADntesis", out.URL)
	assert.Equal(t, []string{"Hoja_verde.jpg"}, out.ImageNames)

	// image listing is best effort
	out, err = ResolveEncyclopedia(ctx, EncyclopediaDeps{Log: log, Chat: chat, Wiki: &lessontest.Wiki{Err: errors.New("down")}}, "fotosíntesis")
	require.NoError(t, err)
	assert.Empty(t, out.ImageNames)

	bad := lessontest.NewChat().On("wikipedia_ref", func(openrouter.Request) (any, error) {
		return map[string]any{"wikipedia_url": "Fotosíntesis"}, nil
	})
	_, err = ResolveEncyclopedia(ctx, EncyclopediaDeps{Log: log, Chat: bad, Wiki: wiki}, "fotosíntesis")
	var invalid *openrouter.ErrInvalidResponse
	require.ErrorAs(t, err, &invalid)
}

func TestIsRelevantImage(t *testing.T) {
	assert.True(t, IsRelevantImage("Ciclo_del-Agua.svg", "El agua"))
	assert.True(t, IsRelevantImage("Fotosintesis_diagrama.png", "Diagrama"))
	assert.False(t, IsRelevantImage("Mapa_de_Europa.png", "Volcán"))
	assert.False(t, IsRelevantImage("Hoja.png", "   "))
}

func TestProduceMediaText(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	chat := lessontest.NewChat().On("explanation", func(req openrouter.Request) (any, error) {
		return `{"explanation": "  La **luz**\nse  convierte. "}`, nil
	})
	images := &lessontest.Images{}
	deps := MediaDeps{Log: log, Chat: chat, Images: images, Assets: newAssets(t), ExplanationModel: "m"}

	out, err := ProduceMedia(ctx, deps, MediaInput{Step: types.OutlineStep{Title: "Luz", MediaKind: types.MediaKindText, Instruction: "explica la luz"}})
	require.NoError(t, err)
	assert.Nil(t, out.ImageID)
	assert.Equal(t, "La **luz** se convierte.", out.Explanation)
	assert.Empty(t, images.Prompts)

	calls := chat.CallsFor("explanation")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "'explica la luz' y 'Luz'")
}

func TestProduceMediaImage(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	assets := newAssets(t)
	step := types.OutlineStep{Title: "Hoja", MediaKind: types.MediaKindImage, Instruction: "una hoja verde"}

	t.Run("instruction caption", func(t *testing.T) {
		images := &lessontest.Images{}
		out, err := ProduceMedia(ctx, MediaDeps{Log: log, Chat: lessontest.NewChat(), Images: images, Assets: assets}, MediaInput{Step: step})
		require.NoError(t, err)
		require.NotNil(t, out.ImageID)
		assert.Equal(t, "una hoja verde", out.Explanation)
		assert.Empty(t, out.ImageURL)
		require.Len(t, images.Prompts, 1)
		assert.True(t, strings.HasSuffix(images.Prompts[0], "Explicación: una hoja verde"))

		loaded, err := assets.LoadImage(ctx, *out.ImageID)
		require.NoError(t, err)
		assert.Equal(t, "image/png", loaded.MimeType)
		assert.Equal(t, lessontest.PNG(), loaded.Data)
	})

	t.Run("vision caption", func(t *testing.T) {
		chat := lessontest.NewChat().On("explanation", func(req openrouter.Request) (any, error) {
			if len(req.Images) != 1 || !strings.HasPrefix(req.Images[0], "data:image/png;base64,") {
				return nil, errors.New("expected one inline image")
			}
			return map[string]any{"explanation": "Una hoja con nervaduras."}, nil
		})
		deps := MediaDeps{Log: log, Chat: chat, Images: &lessontest.Images{}, Assets: assets, VisionExplanations: true}
		out, err := ProduceMedia(ctx, deps, MediaInput{Step: step})
		require.NoError(t, err)
		assert.Equal(t, "Una hoja con nervaduras.", out.Explanation)
	})

	t.Run("vision failure keeps instruction", func(t *testing.T) {
		chat := lessontest.NewChat().On("explanation", func(openrouter.Request) (any, error) { return nil, errors.New("boom") })
		deps := MediaDeps{Log: log, Chat: chat, Images: &lessontest.Images{}, Assets: assets, VisionExplanations: true}
		out, err := ProduceMedia(ctx, deps, MediaInput{Step: step})
		require.NoError(t, err)
		assert.Equal(t, "una hoja verde", out.Explanation)
	})

	t.Run("generation failure", func(t *testing.T) {
		images := &lessontest.Images{Fail: func(string) error { return errors.New("quota") }}
		_, err := ProduceMedia(ctx, MediaDeps{Log: log, Chat: lessontest.NewChat(), Images: images, Assets: assets}, MediaInput{Step: step})
		var failure *MediaFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, MediaOriginGeneration, failure.Origin)
	})

	t.Run("encyclopedia image", func(t *testing.T) {
		wiki := &lessontest.Wiki{URLs: map[string]string{"Hoja_de_roble.jpg": "https://upload.wikimedia.org/hoja.jpg"}}
		images := &lessontest.Images{}
		deps := MediaDeps{Log: log, Chat: lessontest.NewChat(), Images: images, Wiki: wiki, Assets: assets, EncyclopediaImages: true}
		out, err := ProduceMedia(ctx, deps, MediaInput{Step: step, EncyclopediaImageNames: []string{"Mapa.png", "Hoja_de_roble.jpg"}})
		require.NoError(t, err)
		require.NotNil(t, out.ImageID)
		assert.Equal(t, "https://upload.wikimedia.org/hoja.jpg", out.ImageURL)
		assert.Empty(t, images.Prompts)

		loaded, err := assets.LoadImage(ctx, *out.ImageID)
		require.NoError(t, err)
		assert.Nil(t, loaded.Data)
		require.NotNil(t, loaded.Asset.SourceURL)
		assert.Equal(t, "image/jpeg", loaded.MimeType)
	})

	t.Run("encyclopedia miss falls back to generation", func(t *testing.T) {
		images := &lessontest.Images{}
		deps := MediaDeps{Log: log, Chat: lessontest.NewChat(), Images: images, Wiki: &lessontest.Wiki{}, Assets: assets, EncyclopediaImages: true}
		out, err := ProduceMedia(ctx, deps, MediaInput{Step: step, EncyclopediaImageNames: []string{"Mapa.png"}})
		require.NoError(t, err)
		require.NotNil(t, out.ImageID)
		assert.Len(t, images.Prompts, 1)
	})
}

func TestGatherReferences(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	source := strings.Repeat("á", MaxSourceRunes+50)
	wiki := &lessontest.Wiki{Sources: map[string]string{"Volcán": source}}

	chat := lessontest.NewChat().On("references", func(req openrouter.Request) (any, error) {
		if strings.Contains(req.Prompt, strings.Repeat("á", MaxSourceRunes+1)) {
			return nil, errors.New("source not truncated")
		}
		return map[string]any{"references": []string{
			"https://es.wikipedia.org/wiki/Volc%C3%A1n",
			"https://www.usgs.gov/volcanoes",
			"https://www.usgs.gov/volcanoes/",
			"ftp://example.org/file",
			"not a url",
			"https://volcano.si.edu",
			"https://www.nationalgeographic.com/volcanes",
			"https://example.org/cuarto",
		}}, nil
	})
	deps := ReferenceDeps{Log: log, Chat: chat, Wiki: wiki, Model: "m", Timeout: time.Second}

	refs, err := GatherReferences(ctx, deps, ReferenceInput{
		MediaKind:       types.MediaKindText,
		Explanation:     "Los volcanes",
		EncyclopediaURL: "https://es.wikipedia.org/wiki/Volc%C3%A1n",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.usgs.gov/volcanoes",
		"https://volcano.si.edu",
		"https://www.nationalgeographic.com/volcanes",
	}, refs)

	refs, err = GatherReferences(ctx, deps, ReferenceInput{MediaKind: types.MediaKindText, Explanation: "x"})
	require.NoError(t, err)
	assert.NotNil(t, refs)
	assert.Empty(t, refs)

	refs, err = GatherReferences(ctx, ReferenceDeps{Log: log, Chat: chat, Wiki: &lessontest.Wiki{}}, ReferenceInput{
		MediaKind:       types.MediaKindText,
		EncyclopediaURL: "https://es.wikipedia.org/wiki/Nada",
	})
	require.Error(t, err)
	assert.NotNil(t, refs)
	assert.Empty(t, refs)
}

func TestGatherReferencesImage(t *testing.T) {
	ctx := context.Background()
	refs, err := GatherReferences(ctx, ReferenceDeps{}, ReferenceInput{MediaKind: types.MediaKindImage, ImageSourceURL: "https://upload.wikimedia.org/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://upload.wikimedia.org/a.jpg"}, refs)

	refs, err = GatherReferences(ctx, ReferenceDeps{}, ReferenceInput{MediaKind: types.MediaKindImage, ImageSourceURL: "/relative.png"})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "añ", truncateRunes("añob", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "", truncateRunes("abc", 0))
}

func TestNarrate(t *testing.T) {
	ctx := context.Background()
	log := testutil.Logger(t)
	assets := newAssets(t)

	tts := &lessontest.TTS{Audio: []byte("mp3-bytes")}
	id, err := Narrate(ctx, NarrationDeps{Log: log, TTS: tts, Assets: assets}, "  hola  ")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, []string{"hola"}, tts.Scripts)

	audio, data, err := assets.LoadAudio(ctx, *id)
	require.NoError(t, err)
	assert.Equal(t, services.AudioMimeType, audio.MimeType)
	assert.Equal(t, []byte("mp3-bytes"), data)

	id, err = Narrate(ctx, NarrationDeps{Log: log, TTS: tts, Assets: assets}, " ")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = Narrate(ctx, NarrationDeps{Log: log, TTS: &lessontest.TTS{Err: elevenlabs.ErrMissingAPIKey}, Assets: assets}, "hola")
	require.ErrorIs(t, err, elevenlabs.ErrMissingAPIKey)

	_, err = Narrate(ctx, NarrationDeps{Log: log, TTS: &lessontest.TTS{Err: &elevenlabs.HTTPError{StatusCode: 500}}, Assets: assets}, "hola")
	var httpErr *elevenlabs.HTTPError
	require.ErrorAs(t, err, &httpErr)
}

func TestNarrateHonorsTimeout(t *testing.T) {
	tts := &lessontest.TTS{Block: make(chan struct{})}
	deps := NarrationDeps{Log: testutil.Logger(t), TTS: tts, Assets: newAssets(t), Timeout: 20 * time.Millisecond}
	_, err := Narrate(context.Background(), deps, "hola")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
