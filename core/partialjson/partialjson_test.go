package partialjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: `{"ci`, want: `{}`, ok: true},
		{in: `{"city":"S`, want: `{"city":"S"}`, ok: true},
		{in: `{"city":"SF"}`, want: `{"city":"SF"}`, ok: true},
		{in: `{"x":`, want: `{}`, ok: true},
		{in: `{"x"`, want: `{}`, ok: true},
		{in: `{`, want: `{}`, ok: true},
		{in: `{"a":1,`, want: `{"a":1}`, ok: true},
		{in: `{"a":1,"b`, want: `{"a":1}`, ok: true},
		{in: `{"a":tru`, want: `{}`, ok: true},
		{in: `{"a":true`, want: `{"a":true}`, ok: true},
		{in: `[1, 2, tru`, want: `[1, 2]`, ok: true},
		{in: `[1, -`, want: `[1]`, ok: true},
		{in: `[1.`, want: `[]`, ok: true},
		{in: `[1,`, want: `[1]`, ok: true},
		{in: `[`, want: `[]`, ok: true},
		{in: `{"a":[1,{"b":`, want: `{"a":[1,{}]}`, ok: true},
		{in: `{"a":{"b":"c"`, want: `{"a":{"b":"c"}}`, ok: true},
		{in: `{"s":"line\`, want: `{"s":"line"}`, ok: true},
		{in: `{"s":"snow \u26`, want: `{"s":"snow "}`, ok: true},
		{in: `{"s":"snow ☃`, want: `{"s":"snow ☃"}`, ok: true},
		{in: `"hel`, want: `"hel"`, ok: true},
		{in: `12`, want: `12`, ok: true},
		{in: `  `, ok: false},
		{in: ``, ok: false},
		{in: `tru`, ok: false},
		{in: `-`, ok: false},
		{in: `{]`, ok: false},
		{in: `{"a" 1}`, ok: false},
		{in: `[1,]`, ok: false},
		{in: `{"a":1,}`, ok: false},
		{in: `{} {}`, ok: false},
		{in: `trux`, ok: false},
		{in: `{"a":01}`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Complete(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.True(t, json.Valid([]byte(got)), got)
			}
		})
	}
}

func TestParser_S5Sequence(t *testing.T) {
	p := NewParser()

	v, ok := p.Write(`{"ci`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{}, v)

	v, ok = p.Write(`ty":"S`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"city": "S"}, v)

	// No visible change: the dangling comma is cut back.
	_, ok = p.Write(``)
	assert.False(t, ok)

	v, ok = p.Write(`F"}`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"city": "SF"}, v)

	raw, err := p.Final()
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"SF"}`, string(raw))
	assert.Equal(t, `{"city":"SF"}`, p.Text())
}

func TestParser_UnchangedValueIsNotReported(t *testing.T) {
	p := NewParser()
	_, ok := p.Write(`{"a":1`)
	require.True(t, ok)

	_, ok = p.Write(`,`)
	assert.False(t, ok, "trailing comma does not change the value")

	_, ok = p.Write(` "b`)
	assert.False(t, ok, "dangling key does not change the value")

	value, has := p.Value()
	assert.True(t, has)
	assert.Equal(t, map[string]any{"a": float64(1)}, value)
}

func TestParser_FinalIsStrict(t *testing.T) {
	p := NewParser()
	p.Write(`{"city":"S`)
	_, err := p.Final()
	assert.Error(t, err)

	empty := NewParser()
	raw, err := empty.Final()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(raw))
}

func TestParser_SyntaxErrorStopsUpdates(t *testing.T) {
	p := NewParser()
	_, ok := p.Write(`{"a":1}`)
	require.True(t, ok)

	_, ok = p.Write(`garbage`)
	assert.False(t, ok)

	value, _ := p.Value()
	assert.Equal(t, map[string]any{"a": float64(1)}, value)

	_, err := p.Final()
	assert.Error(t, err)
}

// Feeding a document byte by byte must never produce an invalid completion,
// and the final value equals the strict parse.
func TestParser_ByteByByte(t *testing.T) {
	doc := `{"name":"Ada \"Countess\" Lovelace","born":1815,"tags":["math","poetry☃"],"alive":false,"spouse":null,"ratio":-1.5e-3,"nested":{"deep":[[],{}]}}`
	p := NewParser()
	for i := range len(doc) {
		p.Write(doc[i : i+1])
		if completed, ok := Complete(doc[:i+1]); ok {
			assert.True(t, json.Valid([]byte(completed)), "prefix %q -> %q", doc[:i+1], completed)
		}
	}

	var want any
	require.NoError(t, json.Unmarshal([]byte(doc), &want))
	got, ok := p.Value()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func FuzzComplete(f *testing.F) {
	for _, seed := range []string{
		`{"city":"SF"}`,
		`[1,2,{"a":[true,false,null]}]`,
		`{"s":"esc \" \\ é \n"}`,
		`-12.5e+3`,
		`{"a":{"b":{"c":[1,[2,[3]]]}}}`,
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, doc string) {
		if !json.Valid([]byte(doc)) {
			// Arbitrary input must not panic, and any completion must be valid.
			if completed, ok := Complete(doc); ok && !json.Valid([]byte(completed)) {
				t.Fatalf("invalid completion %q for %q", completed, doc)
			}
			return
		}

		for i := 1; i <= len(doc); i++ {
			completed, ok := Complete(doc[:i])
			if ok && !json.Valid([]byte(completed)) {
				t.Fatalf("prefix %q completed to invalid %q", doc[:i], completed)
			}
		}

		var want any
		if err := json.Unmarshal([]byte(doc), &want); err != nil {
			t.Skip()
		}
		got, ok := Parse(doc)
		if !ok {
			t.Fatalf("complete document %q not parsed", doc)
		}
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			t.Fatalf("parse mismatch: %s vs %s", gotJSON, wantJSON)
		}
	})
}
