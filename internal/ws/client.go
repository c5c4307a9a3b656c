package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/lesson-sync-service/internal/models"
)

// ProcessPageResponse is the remote outcome of replaying a page attempt.
type ProcessPageResponse struct {
	NewPageID int64    `json:"newpageid"`
	Correct   bool     `json:"correctanswer"`
	AnswerID  int64    `json:"answerid"`
	Warnings  []string `json:"warnings"`
}

// FinishField is one name/value entry in the finish-retake response.
type FinishField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FinishRetakeResponse is the remote outcome of finishing a retake.
type FinishRetakeResponse struct {
	Data     []FinishField `json:"data"`
	Warnings []string      `json:"warnings"`
}

// ReviewPageID extracts the page id from the review-lesson URL the
// finish response carries, when present.
func (r *FinishRetakeResponse) ReviewPageID() (int64, bool) {
	for _, field := range r.Data {
		if field.Name != "reviewlesson" {
			continue
		}
		u, err := url.Parse(field.Value)
		if err != nil {
			return 0, false
		}
		raw := u.Query().Get("pageid")
		if raw == "" {
			return 0, false
		}
		pageID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false
		}
		return pageID, true
	}
	return 0, false
}

// LessonWebService is the remote surface the synchronizer talks to.
// Implementations classify failures into *TransportError and
// *BusinessRejection.
type LessonWebService interface {
	GetLessonByID(ctx context.Context, siteID string, lessonID int64) (*models.Lesson, error)
	GetLessonWithPassword(ctx context.Context, siteID string, lessonID int64, password string) (*models.Lesson, error)
	GetAccessInformation(ctx context.Context, siteID string, lessonID int64) (*models.AccessInfo, error)
	GetPages(ctx context.Context, siteID string, lessonID int64, password string) ([]models.PageWithAnswers, error)
	GetPagesPossibleJumps(ctx context.Context, siteID string, lessonID int64) (models.PageJumps, error)
	ProcessPage(ctx context.Context, siteID string, lessonID, pageID int64, fields map[string]string, password string) (*ProcessPageResponse, error)
	FinishRetake(ctx context.Context, siteID string, lessonID int64, password string, outOfTime bool) (*FinishRetakeResponse, error)
	LogPageViewed(ctx context.Context, siteID string, lessonID, pageID int64, password string) error
}

// SiteConfig is the endpoint and token for one LMS site.
type SiteConfig struct {
	BaseURL string
	Token   string
}

// Client is the HTTP implementation of LessonWebService against the LMS
// REST endpoint.
type Client struct {
	httpClient *http.Client
	sites      map[string]SiteConfig
	logger     *slog.Logger
}

// NewClient builds a client for the configured sites.
func NewClient(sites map[string]SiteConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sites:      sites,
		logger:     logger,
	}
}

const (
	fnGetLesson     = "mod_lesson_get_lesson"
	fnGetAccessInfo = "mod_lesson_get_lesson_access_information"
	fnGetPages      = "mod_lesson_get_pages"
	fnGetJumps      = "mod_lesson_get_pages_possible_jumps"
	fnProcessPage   = "mod_lesson_process_page"
	fnFinishAttempt = "mod_lesson_finish_attempt"
	fnViewLesson    = "mod_lesson_view_lesson"
)

// wsError is the error payload the LMS returns with HTTP 200.
type wsError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call performs one REST invocation and decodes the response into dest,
// classifying failures.
func (c *Client) call(ctx context.Context, siteID, wsFunction string, params url.Values, dest any) error {
	site, ok := c.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSiteNotConfigured, siteID)
	}

	form := url.Values{}
	for key, values := range params {
		form[key] = values
	}
	form.Set("wstoken", site.Token)
	form.Set("wsfunction", wsFunction)
	form.Set("moodlewsrestformat", "json")

	endpoint := strings.TrimRight(site.BaseURL, "/") + "/webservice/rest/server.php"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", wsFunction, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: wsFunction, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &TransportError{Op: wsFunction, Err: fmt.Errorf("server returned %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return &BusinessRejection{Op: wsFunction, Message: fmt.Sprintf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: wsFunction, Err: fmt.Errorf("read response: %w", err)}
	}

	// The service reports application errors with HTTP 200 and an
	// exception payload.
	var remoteErr wsError
	if err := json.Unmarshal(body, &remoteErr); err == nil && remoteErr.Exception != "" {
		return &BusinessRejection{Op: wsFunction, ErrorCode: remoteErr.ErrorCode, Message: remoteErr.Message}
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &TransportError{Op: wsFunction, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) GetLessonByID(ctx context.Context, siteID string, lessonID int64) (*models.Lesson, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))

	var payload struct {
		Lesson models.Lesson `json:"lesson"`
	}
	if err := c.call(ctx, siteID, fnGetLesson, params, &payload); err != nil {
		return nil, err
	}
	return &payload.Lesson, nil
}

func (c *Client) GetLessonWithPassword(ctx context.Context, siteID string, lessonID int64, password string) (*models.Lesson, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))
	if password != "" {
		params.Set("password", password)
	}

	var payload struct {
		Lesson models.Lesson `json:"lesson"`
	}
	if err := c.call(ctx, siteID, fnGetLesson, params, &payload); err != nil {
		return nil, err
	}
	return &payload.Lesson, nil
}

func (c *Client) GetAccessInformation(ctx context.Context, siteID string, lessonID int64) (*models.AccessInfo, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))

	var info models.AccessInfo
	if err := c.call(ctx, siteID, fnGetAccessInfo, params, &info); err != nil {
		return nil, err
	}
	info.LessonID = lessonID
	return &info, nil
}

func (c *Client) GetPages(ctx context.Context, siteID string, lessonID int64, password string) ([]models.PageWithAnswers, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))
	if password != "" {
		params.Set("password", password)
	}

	var payload struct {
		Pages []models.PageWithAnswers `json:"pages"`
	}
	if err := c.call(ctx, siteID, fnGetPages, params, &payload); err != nil {
		return nil, err
	}
	return payload.Pages, nil
}

func (c *Client) GetPagesPossibleJumps(ctx context.Context, siteID string, lessonID int64) (models.PageJumps, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))

	var payload struct {
		Jumps []struct {
			PageID         int64 `json:"pageid"`
			JumpTo         int64 `json:"jumpto"`
			CalculatedJump int64 `json:"calculatedjump"`
		} `json:"jumps"`
	}
	if err := c.call(ctx, siteID, fnGetJumps, params, &payload); err != nil {
		return nil, err
	}

	jumps := make(models.PageJumps)
	for _, entry := range payload.Jumps {
		if jumps[entry.PageID] == nil {
			jumps[entry.PageID] = make(map[int64]int64)
		}
		jumps[entry.PageID][entry.JumpTo] = entry.CalculatedJump
	}
	return jumps, nil
}

func (c *Client) ProcessPage(ctx context.Context, siteID string, lessonID, pageID int64, fields map[string]string, password string) (*ProcessPageResponse, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))
	params.Set("pageid", strconv.FormatInt(pageID, 10))
	if password != "" {
		params.Set("password", password)
	}

	// The attempt form fields travel as an indexed name/value array.
	i := 0
	for name, value := range fields {
		params.Set(fmt.Sprintf("data[%d][name]", i), name)
		params.Set(fmt.Sprintf("data[%d][value]", i), value)
		i++
	}

	var response ProcessPageResponse
	if err := c.call(ctx, siteID, fnProcessPage, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) FinishRetake(ctx context.Context, siteID string, lessonID int64, password string, outOfTime bool) (*FinishRetakeResponse, error) {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))
	if password != "" {
		params.Set("password", password)
	}
	if outOfTime {
		params.Set("outoftime", "1")
	}

	var response FinishRetakeResponse
	if err := c.call(ctx, siteID, fnFinishAttempt, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) LogPageViewed(ctx context.Context, siteID string, lessonID, pageID int64, password string) error {
	params := url.Values{}
	params.Set("lessonid", strconv.FormatInt(lessonID, 10))
	if pageID > 0 {
		params.Set("pageid", strconv.FormatInt(pageID, 10))
	}
	if password != "" {
		params.Set("password", password)
	}

	return c.call(ctx, siteID, fnViewLesson, params, nil)
}
