package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	sites := map[string]SiteConfig{
		"site1": {BaseURL: server.URL, Token: "token-abc"},
	}
	return NewClient(sites, testLogger())
}

func TestClientGetLessonByID(t *testing.T) {
	var gotFunction, gotToken, gotLessonID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		gotFunction = r.PostFormValue("wsfunction")
		gotToken = r.PostFormValue("wstoken")
		gotLessonID = r.PostFormValue("lessonid")
		w.Write([]byte(`{"lesson":{"id":7,"course":3,"name":"Intro","grade":100}}`))
	})

	lesson, err := client.GetLessonByID(context.Background(), "site1", 7)
	if err != nil {
		t.Fatalf("GetLessonByID: %v", err)
	}
	if lesson.ID != 7 || lesson.CourseID != 3 || lesson.Name != "Intro" {
		t.Errorf("lesson = %+v", lesson)
	}
	if gotFunction != "mod_lesson_get_lesson" {
		t.Errorf("wsfunction = %q", gotFunction)
	}
	if gotToken != "token-abc" {
		t.Errorf("wstoken = %q", gotToken)
	}
	if gotLessonID != "7" {
		t.Errorf("lessonid = %q", gotLessonID)
	}
}

func TestClientExceptionPayloadIsBusinessRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exception":"moodle_exception","errorcode":"cannotfindlesson","message":"Lesson not found"}`))
	})

	_, err := client.GetLessonByID(context.Background(), "site1", 7)
	var rejection *BusinessRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected BusinessRejection, got %v", err)
	}
	if rejection.ErrorCode != "cannotfindlesson" {
		t.Errorf("errorcode = %q", rejection.ErrorCode)
	}
	if IsTransportError(err) {
		t.Error("rejection should not classify as transport error")
	}
}

func TestClientServerErrorIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.GetLessonByID(context.Background(), "site1", 7)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestClientConnectionRefusedIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	sites := map[string]SiteConfig{"site1": {BaseURL: server.URL, Token: "t"}}
	server.Close()

	client := NewClient(sites, testLogger())
	_, err := client.GetLessonByID(context.Background(), "site1", 7)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestClientUnknownSite(t *testing.T) {
	client := NewClient(map[string]SiteConfig{}, testLogger())
	_, err := client.GetLessonByID(context.Background(), "nope", 7)
	if !errors.Is(err, ErrSiteNotConfigured) {
		t.Fatalf("expected ErrSiteNotConfigured, got %v", err)
	}
}

func TestClientProcessPageEncodesFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostFormValue("pageid") != "20" {
			t.Errorf("pageid = %q", r.PostFormValue("pageid"))
		}
		if r.PostFormValue("password") != "secret" {
			t.Errorf("password = %q", r.PostFormValue("password"))
		}
		if r.PostFormValue("data[0][name]") != "answer" || r.PostFormValue("data[0][value]") != "Go" {
			t.Errorf("data[0] = %q=%q", r.PostFormValue("data[0][name]"), r.PostFormValue("data[0][value]"))
		}
		w.Write([]byte(`{"newpageid":30,"correctanswer":true,"answerid":201}`))
	})

	resp, err := client.ProcessPage(context.Background(), "site1", 7, 20, map[string]string{"answer": "Go"}, "secret")
	if err != nil {
		t.Fatalf("ProcessPage: %v", err)
	}
	if resp.NewPageID != 30 || !resp.Correct || resp.AnswerID != 201 {
		t.Errorf("response = %+v", resp)
	}
}

func TestClientFinishRetake(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostFormValue("wsfunction") != "mod_lesson_finish_attempt" {
			t.Errorf("wsfunction = %q", r.PostFormValue("wsfunction"))
		}
		if r.PostFormValue("outoftime") != "1" {
			t.Errorf("outoftime = %q", r.PostFormValue("outoftime"))
		}
		w.Write([]byte(`{"data":[{"name":"reviewlesson","value":"https://lms.example/mod/lesson/view.php?id=5&pageid=42"}]}`))
	})

	resp, err := client.FinishRetake(context.Background(), "site1", 7, "", true)
	if err != nil {
		t.Fatalf("FinishRetake: %v", err)
	}
	pageID, ok := resp.ReviewPageID()
	if !ok || pageID != 42 {
		t.Errorf("ReviewPageID = %d, %v, want 42, true", pageID, ok)
	}
}

func TestReviewPageID(t *testing.T) {
	tests := []struct {
		name   string
		fields []FinishField
		want   int64
		ok     bool
	}{
		{
			name:   "review url with pageid",
			fields: []FinishField{{Name: "reviewlesson", Value: "https://lms.example/view.php?pageid=12"}},
			want:   12,
			ok:     true,
		},
		{
			name:   "review url without pageid",
			fields: []FinishField{{Name: "reviewlesson", Value: "https://lms.example/view.php?id=5"}},
		},
		{
			name:   "no review field",
			fields: []FinishField{{Name: "gradelesson", Value: "1"}},
		},
		{
			name:   "malformed pageid",
			fields: []FinishField{{Name: "reviewlesson", Value: "https://lms.example/view.php?pageid=abc"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &FinishRetakeResponse{Data: tt.fields}
			got, ok := resp.ReviewPageID()
			if got != tt.want || ok != tt.ok {
				t.Errorf("ReviewPageID() = %d, %v, want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestClientLogPageViewed(t *testing.T) {
	var gotFunction, gotPageID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		gotFunction = r.PostFormValue("wsfunction")
		gotPageID = r.PostFormValue("pageid")
		w.Write([]byte(`{"status":true}`))
	})

	if err := client.LogPageViewed(context.Background(), "site1", 7, 20, ""); err != nil {
		t.Fatalf("LogPageViewed: %v", err)
	}
	if gotFunction != "mod_lesson_view_lesson" {
		t.Errorf("wsfunction = %q", gotFunction)
	}
	if gotPageID != "20" {
		t.Errorf("pageid = %q", gotPageID)
	}
}
