package service

import (
	"errors"
	"testing"
)

func TestLenientDecode_AcceptedDeviations(t *testing.T) {
	cases := map[string]string{
		"plain":                               `{"a":1,"b":[1,2]}`,
		"whitespace":                          "\n\t  {\"a\":1,\"b\":[1,2]}  \n",
		"fenced json":                         "```json\n{\"a\":1,\"b\":[1,2]}\n```",
		"fenced bare":                         "```\n{\"a\":1,\"b\":[1,2]}\n```",
		"prose around":                        "Here is the result:\n{\"a\":1,\"b\":[1,2]}\nLet me know if you need more.",
		"trailing commas":                     `{"a":1,"b":[1,2,],}`,
		"everything":                          "Sure!\n```json\n{\"a\": 1, \"b\": [1, 2 , ] ,\n}\n```\nDone.",
		"fence in string":                     "{\n \"a\": 1,\n \"s\": \"use ```go\\nfmt.Println()\\n``` here\",\n \"b\": [1, 2]\n}",
		"fenced payload with fence in string": "```json\n{\"s\": \"```py\\nprint(1)\\n```\", \"a\": 1, \"b\": [1, 2]}\n```",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var got struct {
				A int   `json:"a"`
				B []int `json:"b"`
			}
			if err := LenientDecode(raw, &got); err != nil {
				t.Fatalf("LenientDecode: %v", err)
			}
			if got.A != 1 || len(got.B) != 2 || got.B[1] != 2 {
				t.Fatalf("decoded %+v", got)
			}
		})
	}
}

func TestLenientDecode_KeepsCommasAndBracketsInsideStrings(t *testing.T) {
	var got struct {
		S string `json:"s"`
	}
	if err := LenientDecode(`{"s":"a,] b,} \"c{"}`, &got); err != nil {
		t.Fatalf("LenientDecode: %v", err)
	}
	if got.S != `a,] b,} "c{` {
		t.Fatalf("string mangled: %q", got.S)
	}
}

func TestLenientDecode_RejectsOtherDeviations(t *testing.T) {
	cases := map[string]string{
		"single quotes":   `{'a': 1}`,
		"comments":        "{\"a\": 1 // one\n}",
		"unbalanced":      `{"a": [1, 2}`,
		"no json":         "I cannot help with that.",
		"unquoted keys":   `{a: 1}`,
		"missing commas":  `{"a": 1 "b": 2}`,
		"truncated":       `{"questions": [{"type": "mcq"`,
		"python literals": `{"a": None}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var v map[string]any
			if err := LenientDecode(raw, &v); !errors.Is(err, ErrMalformedJSON) {
				t.Fatalf("err = %v, want ErrMalformedJSON", err)
			}
		})
	}
}

func TestLenientDecode_EmptyCompletion(t *testing.T) {
	var v map[string]any
	if err := LenientDecode("   \n", &v); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("err = %v, want ErrEmptyCompletion", err)
	}
}
