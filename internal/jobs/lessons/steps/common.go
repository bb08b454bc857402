package steps

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NotARoomba/canvas/internal/platform/openrouter"
)

// MaxSourceRunes bounds the encyclopedia page text sent for reference extraction.
const MaxSourceRunes = 10000

// MaxReferences caps the references kept for a text step.
const MaxReferences = 3

const (
	outlinePrompt = "Dado el tema '%s', crea un esquema para explicarlo a un nivel %s. " +
		"Devuelve un objeto JSON con: " +
		"- 'title': el título de la lección. " +
		"- 'description': una descripción breve de la lección. " +
		"- 'outline': un array de pasos, cada uno con 'title', 'media_type' (uno de ['text','image']), " +
		"'prompt' (la instrucción para generar el contenido del paso) y 'speech' (texto de 10 segundos para narrar el paso). " +
		"Si vas a poner un imagen, el 'prompt' debe describir la imagen que se va a generar. " +
		"La información debe adaptarse al nivel educativo indicado. " +
		"Evita redundancias. Texto en español sin formato. Solo JSON sin otros textos."

	imagePrompt = "Dada la siguiente explicación, genera una imagen que represente visualmente el contenido de forma clara y coherente. " +
		"Asegúrate de que la imagen esté relacionada directamente con el tema descrito. Explicación: %s"

	explanationPrompt = "Explica siguiente paso y da el titulo y hazlo de acuerdo con el prompt y title: '%s' y '%s'. " +
		"Evita ser redundante. Devuelve el texto en español. Agrega markdown simple como listas/bulleted points o negritas. " +
		"Devuélvelo como un objeto JSON con un campo de 'explanation' que contenga el explicacion. " +
		"No incluyas ningún otro texto ni explicaciones. No usas newlines y haz el texto corto y conciso."

	visionPrompt = "Explica el siguiente imagen sin titulo. Evita ser redundante. Devuelve el texto en español. " +
		"No agregas estilos al texto como bold. " +
		"Devuélvelo como un objeto JSON con un campo de 'explanation' que contenga el explicacion. " +
		"No incluyas ningún otro texto ni explicaciones. No usas newlines y haz el texto en un solo párrafo."

	encyclopediaPrompt = "Dado el tema '%s', proporciona la URL más relevante de la página de Wikipedia en español. " +
		"Devuelve un objeto JSON con un campo 'wikipedia_url'. Solo devuelve el objeto JSON."

	referencesPrompt = "Analiza este contenido de Wikipedia e identifica las referencias relevantes para la explicación. " +
		"Devuelve un objeto JSON con un arreglo 'references' que contenga URLs. Máximo 3 enlaces. " +
		"Intenta no usar Wikipedia y enfoca en otros fuentes confiables. Sé preciso y evita duplicados. " +
		"Explicación: %s, Contenido: %s"
)

func strictObject(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

var (
	outlineSchema = &openrouter.Schema{
		Name: "outline",
		Definition: strictObject(map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"outline": map[string]any{
				"type": "array",
				"items": strictObject(map[string]any{
					"title":      map[string]any{"type": "string"},
					"media_type": map[string]any{"type": "string", "enum": []any{"text", "image"}},
					"prompt":     map[string]any{"type": "string"},
					"speech":     map[string]any{"type": "string"},
				}, "title", "media_type", "prompt", "speech"),
			},
		}, "title", "description", "outline"),
	}

	explanationSchema = &openrouter.Schema{
		Name: "explanation",
		Definition: strictObject(map[string]any{
			"explanation": map[string]any{"type": "string"},
		}, "explanation"),
	}

	encyclopediaSchema = &openrouter.Schema{
		Name: "wikipedia_ref",
		Definition: strictObject(map[string]any{
			"wikipedia_url": map[string]any{"type": "string"},
		}, "wikipedia_url"),
	}

	referencesSchema = &openrouter.Schema{
		Name: "references",
		Definition: strictObject(map[string]any{
			"references": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		}, "references"),
	}
)

type explanationResponse struct {
	Explanation string `json:"explanation"`
}

// withTimeout bounds a single external call. A non-positive d leaves ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// truncateRunes keeps the first max runes of s.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
