package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"llmsrc/pkg/contract"
)

type fakeGen struct {
	calls  int
	errs   []error
	resp   *genai.GenerateContentResponse
	model  string
	config *genai.GenerateContentConfig
	input  []*genai.Content
}

func (f *fakeGen) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model, f.config, f.input = model, config, contents
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.resp, nil
}

func textResp(s string, fr genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content:      genai.NewContentFromText(s, genai.RoleModel),
		FinishReason: fr,
	}}}
}

func testClient(g generator) *Client {
	zero := 0
	o := Options{MaxRetries: &zero, RetryBaseMS: 1}
	o.defaults()
	return newClient(g, o)
}

var chat = contract.ChatPrompt{{Role: "system", Content: "rules"}, {Role: "user", Content: "code"}}

func TestInvokeSuccess(t *testing.T) {
	g := &fakeGen{resp: textResp("int a;", genai.FinishReasonStop)}
	raw, err := testClient(g).Invoke(context.Background(), contract.Block{}, chat)
	require.NoError(t, err)
	assert.Equal(t, "int a;", raw.Text)
	assert.Equal(t, "gemini-2.5-flash", g.model)
	require.NotNil(t, g.config.SystemInstruction)
	assert.Equal(t, "rules", g.config.SystemInstruction.Parts[0].Text)
	assert.EqualValues(t, 2000, g.config.MaxOutputTokens)
	assert.InDelta(t, 0.1, *g.config.Temperature, 1e-6)
	require.Len(t, g.input, 1)
	assert.Equal(t, "code", g.input[0].Parts[0].Text)
}

func TestInvokeErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"auth", genai.APIError{Code: 403, Message: "denied"}, contract.ErrUnauthorized},
		{"rate", genai.APIError{Code: 429, Message: "quota"}, contract.ErrRateLimited},
		{"bad", genai.APIError{Code: 400, Message: "bad"}, contract.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &fakeGen{errs: []error{tc.err}}
			_, err := testClient(g).Invoke(context.Background(), contract.Block{}, chat)
			assert.ErrorIs(t, err, tc.want)
			var ue contract.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tc.err.(genai.APIError).Message, ue.UpstreamMessage())
		})
	}
}

func TestInvokeRetriesServerError(t *testing.T) {
	one := 1
	o := Options{MaxRetries: &one, RetryBaseMS: 1}
	o.defaults()
	g := &fakeGen{errs: []error{genai.APIError{Code: 503}}, resp: textResp("ok", genai.FinishReasonStop)}
	raw, err := newClient(g, o).Invoke(context.Background(), contract.Block{}, chat)
	require.NoError(t, err)
	assert.Equal(t, "ok", raw.Text)
	assert.Equal(t, 2, g.calls)
}

func TestInvokeInvalidResponse(t *testing.T) {
	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		textResp("   ", genai.FinishReasonStop),
		textResp("int a", genai.FinishReasonMaxTokens),
	} {
		_, err := testClient(&fakeGen{resp: resp}).Invoke(context.Background(), contract.Block{}, chat)
		assert.ErrorIs(t, err, contract.ErrResponseInvalid)
	}
}

func TestInvokeOtherErrorPassThrough(t *testing.T) {
	boom := errors.New("boom")
	_, err := testClient(&fakeGen{errs: []error{boom}}).Invoke(context.Background(), contract.Block{}, chat)
	assert.ErrorIs(t, err, boom)
}

func TestEncodePrompt(t *testing.T) {
	sys, contents, err := encodePrompt(contract.TextPrompt("hello"))
	require.NoError(t, err)
	assert.Empty(t, sys)
	require.Len(t, contents, 1)

	_, contents, err = encodePrompt(contract.ChatPrompt{{Role: "assistant", Content: "a"}, {Role: "user", Content: "b"}})
	require.NoError(t, err)
	assert.Equal(t, string(genai.RoleModel), contents[0].Role)
	assert.Equal(t, string(genai.RoleUser), contents[1].Role)

	_, _, err = encodePrompt(contract.ChatPrompt{{Role: "system", Content: "only"}})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, _, err = encodePrompt(3)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
