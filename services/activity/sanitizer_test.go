package activity

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultSensitive = []string{"password", "secret", "token"}

func TestSanitizer_RedactsAtEveryDepth(t *testing.T) {
	s := NewSanitizer(defaultSensitive)

	payload := map[string]any{
		"password": "hunter2",
		"name":     "alice",
		"nested": map[string]any{
			"token": "abc",
			"deeper": map[string]any{
				"secret": map[string]any{"value": "x"},
				"keep":   1.0,
			},
		},
		"list": []any{
			map[string]any{"password": "p1", "id": "a"},
			"plain",
			[]any{map[string]any{"token": "t"}},
		},
	}

	out := s.Sanitize(payload)

	assert.Equal(t, RedactedValue, out["password"])
	assert.Equal(t, "alice", out["name"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, RedactedValue, nested["token"])
	deeper := nested["deeper"].(map[string]any)
	assert.Equal(t, RedactedValue, deeper["secret"])
	assert.Equal(t, 1.0, deeper["keep"])

	list := out["list"].([]any)
	require.Len(t, list, 3)
	assert.Equal(t, map[string]any{"password": RedactedValue, "id": "a"}, list[0])
	assert.Equal(t, "plain", list[1])
	assert.Equal(t, []any{map[string]any{"token": RedactedValue}}, list[2])
}

func TestSanitizer_DoesNotMutateInput(t *testing.T) {
	s := NewSanitizer(defaultSensitive)
	payload := map[string]any{
		"password": "hunter2",
		"input": map[string]any{
			"_id":  "internal",
			"name": "report",
		},
		"items": []any{map[string]any{"token": "t"}},
	}

	out := s.Sanitize(payload)

	assert.Equal(t, "hunter2", payload["password"])
	assert.Equal(t, "internal", payload["input"].(map[string]any)["_id"])
	assert.Equal(t, "t", payload["items"].([]any)[0].(map[string]any)["token"])

	assert.Equal(t, RedactedValue, out["password"])
	assert.NotContains(t, out["input"], "_id")
}

func TestSanitizer_InputPatches(t *testing.T) {
	s := NewSanitizer(defaultSensitive)
	payload := map[string]any{
		"input": []any{
			map[string]any{"key": "password", "value": []any{"new-secret"}},
			map[string]any{"key": "name", "value": []any{"Bob"}},
			map[string]any{"key": "token", "value": ""},
			map[string]any{"key": "description", "value": map[string]any{"secret": "inner"}},
		},
	}

	out := s.Sanitize(payload)
	input := out["input"].([]any)
	require.Len(t, input, 4)

	assert.Equal(t, map[string]any{"password": RedactedValue}, input[0])
	assert.Equal(t, map[string]any{"key": "name", "value": []any{"Bob"}}, input[1])
	// an empty patch value is not collapsed
	assert.Equal(t, map[string]any{"key": "token", "value": ""}, input[2])
	// non matching patches are still walked
	assert.Equal(t, map[string]any{"key": "description", "value": map[string]any{"secret": RedactedValue}}, input[3])
}

func TestSanitizer_InputObjectDropsEngineArtifacts(t *testing.T) {
	s := NewSanitizer(defaultSensitive)
	payload := map[string]any{
		"input": map[string]any{
			"_id":          "x",
			"sort":         "asc",
			"i_attributes": []any{"a"},
			"i_relation":   map[string]any{"id": "r"},
			"name":         "keep",
			"password":     "pw",
		},
		"other": map[string]any{"_id": "stays outside input"},
	}

	out := s.Sanitize(payload)

	assert.Equal(t, map[string]any{"name": "keep", "password": RedactedValue}, out["input"])
	assert.Equal(t, map[string]any{"_id": "stays outside input"}, out["other"])
}

func TestSanitizer_NilAndScalars(t *testing.T) {
	s := NewSanitizer(defaultSensitive)

	assert.Equal(t, map[string]any{}, s.Sanitize(nil))
	assert.Equal(t, "plain", s.SanitizeValue("plain"))
	assert.Nil(t, s.SanitizeValue(nil))
}

func TestSanitizer_TypedValues(t *testing.T) {
	type credentials struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	s := NewSanitizer(defaultSensitive)

	out := s.Sanitize(map[string]any{
		"creds":   credentials{User: "bob", Password: "pw"},
		"headers": map[string]string{"token": "abc", "accept": "json"},
	})

	assert.Equal(t, map[string]any{"user": "bob", "password": RedactedValue}, out["creds"])
	assert.Equal(t, map[string]any{"token": RedactedValue, "accept": "json"}, out["headers"])
}

func TestSanitizer_UnencodableValuesBecomeNil(t *testing.T) {
	s := NewSanitizer(defaultSensitive)

	out := s.Sanitize(map[string]any{
		"size":     math.NaN(),
		"ratio":    float32(math.Inf(1)),
		"done":     make(chan struct{}),
		"callback": func() {},
		"phase":    complex(1, 2),
		"count":    3.0,
		"nested":   []any{math.Inf(-1), "keep"},
	})

	assert.Nil(t, out["size"])
	assert.Nil(t, out["ratio"])
	assert.Nil(t, out["done"])
	assert.Nil(t, out["callback"])
	assert.Nil(t, out["phase"])
	assert.Equal(t, 3.0, out["count"])
	assert.Equal(t, []any{nil, "keep"}, out["nested"])

	_, err := json.Marshal(out)
	assert.NoError(t, err)
}

func TestSanitizer_DeepNestingUsesNoRecursion(t *testing.T) {
	s := NewSanitizer(defaultSensitive)

	root := map[string]any{}
	current := root
	for i := 0; i < 100000; i++ {
		next := map[string]any{}
		current["child"] = next
		current = next
	}
	current["password"] = "deep"

	out := s.Sanitize(root)

	node := out
	for i := 0; i < 100000; i++ {
		node = node["child"].(map[string]any)
	}
	assert.Equal(t, RedactedValue, node["password"])
}

// randomPayload builds an acyclic payload mixing sensitive and ordinary keys
func randomPayload(r *rand.Rand, depth int) any {
	keys := []string{"password", "secret", "token", "input", "name", "id", "value", "key", "data"}
	if depth == 0 {
		switch r.Intn(3) {
		case 0:
			return fmt.Sprintf("v%d", r.Intn(100))
		case 1:
			return float64(r.Intn(100))
		default:
			return r.Intn(2) == 0
		}
	}
	if r.Intn(3) == 0 {
		list := make([]any, r.Intn(4))
		for i := range list {
			list[i] = randomPayload(r, depth-1)
		}
		return list
	}
	m := make(map[string]any)
	for i := 0; i < r.Intn(5); i++ {
		m[keys[r.Intn(len(keys))]] = randomPayload(r, depth-1)
	}
	return m
}

// assertNoSensitiveValues fails when a sensitive key holds anything but the sentinel
func assertNoSensitiveValues(t *testing.T, s *Sanitizer, v any) {
	t.Helper()
	stack := []any{v}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch n := node.(type) {
		case map[string]any:
			for k, child := range n {
				if s.IsSensitive(k) {
					require.Equal(t, RedactedValue, child, "key %q leaked", k)
					continue
				}
				stack = append(stack, child)
			}
		case []any:
			stack = append(stack, n...)
		}
	}
}

func TestSanitizer_NoSensitiveValueSurvives(t *testing.T) {
	s := NewSanitizer(defaultSensitive)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		payload, ok := randomPayload(r, 5).(map[string]any)
		if !ok {
			continue
		}
		assertNoSensitiveValues(t, s, s.Sanitize(payload))
	}
}
