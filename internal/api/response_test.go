package api

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/testutil"
)

func TestWriteTurnSetsConversationHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	writeTurn(rr, "c1", []models.Outbound{{Kind: models.OutboundNotice, Text: "hello"}})

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "writeTurn")
	if got := rr.Header().Get(ConversationHeader); got != "c1" {
		t.Errorf("expected conversation header c1, got %q", got)
	}
	var env struct {
		Result MessageResult `json:"result"`
	}
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &env)
	if len(env.Result.Messages) != 1 || env.Result.Messages[0] != "hello" {
		t.Errorf("expected rendered message, got %v", env.Result.Messages)
	}
}

func TestWriteStateMissingIsNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	writeState(rr, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "writeState(nil)")
	testutil.AssertJSONResponse(t, rr, "error")
	if rr.Header().Get(ConversationHeader) != "" {
		t.Error("missing conversation should carry no conversation header")
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set(ConversationHeader, "c1")
	writeEnvelope(rr, http.StatusOK, models.Success(math.NaN()))

	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "unencodable result")
	testutil.AssertJSONResponse(t, rr, "error")
	if rr.Header().Get(ConversationHeader) != "" {
		t.Error("failed response should drop the conversation header")
	}
}
