package glpi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIncident_ExpandsDropdownsAndDecodesMixedTypes(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("expand_dropdowns"))
		_, _ = io.WriteString(w, `{
			"id": 42, "name": "Network outage", "content": "&lt;p&gt;down&lt;/p&gt;",
			"status": 5, "priority": 3, "urgency": "3", "impact": 3,
			"date": "2024-03-01 09:00:00", "solvedate": null, "users_id_recipient": "glpi"
		}`)
	})
	c := newTestClient(t, srv)

	raw, err := c.GetIncident(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, raw.ID)
	assert.Equal(t, "Network outage", raw.Name)
	assert.Equal(t, "5", raw.Status)
	assert.Equal(t, "3", raw.Urgency)
	assert.Equal(t, "", raw.SolveDate)
	assert.Equal(t, "glpi", raw.Recipient)
}

func TestGetDocument_DownloadsContent(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Document/9", jsonHandler(`{"id":9,"filename":"log.txt","filepath":"files/TXT/log.txt"}`))
	f.handle("GET /files/TXT/log.txt", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Session-Token"))
		_, _ = io.WriteString(w, "link flapping on eth0")
	})
	c := newTestClient(t, srv)

	doc, err := c.GetDocument(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "log.txt", doc.Filename)
	assert.Equal(t, "link flapping on eth0", string(doc.Bytes))
}

func TestGetDocument_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeGLPI)
	}{
		{"download fails", func(f *fakeGLPI) {
			f.handle("GET /Document/9", jsonHandler(`{"id":9,"filename":"a.pdf","filepath":"files/PDF/a.pdf"}`))
			f.handle("GET /files/PDF/a.pdf", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})
		}},
		{"missing filepath", func(f *fakeGLPI) {
			f.handle("GET /Document/9", jsonHandler(`{"id":9,"filename":"a.pdf"}`))
		}},
		{"malformed metadata", func(f *fakeGLPI) {
			f.handle("GET /Document/9", jsonHandler(`["not","an","object"]`))
		}},
		{"document missing", func(f *fakeGLPI) {}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, srv := newFakeGLPI(t)
			tc.setup(f)
			c := newTestClient(t, srv)

			doc, err := c.GetDocument(context.Background(), 9)
			require.NoError(t, err)
			assert.True(t, doc.Empty())
		})
	}
}

func TestLatestDocumentID(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/42/Document_Item", jsonHandler(`[
		{"id": 3, "documents_id": 11},
		{"id": 8, "documents_id": 15},
		{"id": 5, "documents_id": 12}
	]`))
	c := newTestClient(t, srv)

	id, ok, err := c.LatestDocumentID(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 15, id)

	_, ok, err = c.LatestDocumentID(context.Background(), 43)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetSolutionAndTasks(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/42/ITILSolution", jsonHandler(`[{"id":1,"content":"old"},{"id":2,"content":"rebooted switch"}]`))
	f.handle("GET /Ticket/42/ITILTask", jsonHandler(`[{"id":4,"content":"<p>check cabling</p>","state":2,"users_id":"tech"}]`))
	c := newTestClient(t, srv)

	sol, err := c.GetSolution(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "rebooted switch", sol.Content)

	tasks, err := c.GetTasks(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 4, tasks[0].ID)
	assert.Equal(t, "2", tasks[0].State)
	assert.Equal(t, "tech", tasks[0].UserID)
}

func TestGetSolution_PicksHighestID(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/42/ITILSolution", jsonHandler(`[{"id":9,"content":"newest"},{"id":3,"content":"older"}]`))
	c := newTestClient(t, srv)

	sol, err := c.GetSolution(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 9, sol.ID)
	assert.Equal(t, "newest", sol.Content)
}

func TestUpsertSolution_CreatesWhenNoneExist(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/42/ITILSolution", jsonHandler(`[]`))
	f.handle("POST /ITILSolution", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": 77, "message": ""}`)
	})
	c := newTestClient(t, srv)

	ok, err := c.UpsertSolution(context.Background(), 42, "report text")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, f.calls["PUT /ITILSolution/2"])

	var body struct {
		Input map[string]any `json:"input"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.bodies["POST /ITILSolution"]), &body))
	assert.Equal(t, "Ticket", body.Input["itemtype"])
	assert.Equal(t, float64(42), body.Input["items_id"])
	assert.Equal(t, "report text", body.Input["content"])
}

func TestUpsertSolution_CreateWithoutIDFails(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle("GET /Ticket/42/ITILSolution", jsonHandler(`[]`))
	f.handle("POST /ITILSolution", jsonHandler(`{"message": "rejected"}`))
	c := newTestClient(t, srv)

	ok, err := c.UpsertSolution(context.Background(), 42, "report text")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertSolution_UpdatesMostRecent(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     bool
	}{
		{"empty result succeeds", `[]`, true},
		{"non-empty result fails", `[{"2": false, "message": "denied"}]`, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, srv := newFakeGLPI(t)
			f.handle("GET /Ticket/42/ITILSolution", jsonHandler(`[{"id":2,"content":"b"},{"id":1,"content":"a"}]`))
			f.handle("PUT /ITILSolution/2", jsonHandler(tc.response))
			c := newTestClient(t, srv)

			ok, err := c.UpsertSolution(context.Background(), 42, "new text")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.Equal(t, 1, f.calls["PUT /ITILSolution/2"])
			assert.Equal(t, 0, f.calls["POST /ITILSolution"], "an existing solution must never be duplicated")
			assert.JSONEq(t, `{"input":{"content":"new text"}}`, f.bodies["PUT /ITILSolution/2"])
		})
	}
}
