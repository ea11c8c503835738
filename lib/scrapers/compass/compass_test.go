package compass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edexport-backend/lib/asyncjob"
	"edexport-backend/lib/session"
	"edexport-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body><form>
	<input type="hidden" id="__VIEWSTATE" value="dDwtMTM4NzQ1=="/>
	<input type="hidden" id="__VIEWSTATEGENERATOR" value="CA0B0334"/>
</form></body></html>`

// fakePortal scripts the compass endpoints the client touches.
type fakePortal struct {
	t *testing.T

	queueResponses []string
	queueCalls     int
	pollStatuses   []int
	pollCalls      int
	cyclePages     []int
	cycleRequests  int
	downloads      int
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		require.NoError(p.t, r.ParseForm())
		require.Equal(p.t, "dDwtMTM4NzQ1==", r.PostForm.Get("__VIEWSTATE"))
		if r.PostForm.Get("password") != "hunter2" {
			fmt.Fprint(w, "Sorry - your username and/or password was incorrect")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "sess-1"})
		fmt.Fprint(w, "<html>dashboard</html>")
	})

	mux.HandleFunc("/Services/LongRunningFileRequest.svc/QueueTask", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type       string `json:"type"`
			Parameters string `json:"parameters"`
		}
		require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(p.t, "47", body.Type)

		var params map[string]any
		require.NoError(p.t, json.Unmarshal([]byte(body.Parameters), &params))
		require.EqualValues(p.t, 2024, params["academicYearId"])

		id := ""
		if p.queueCalls < len(p.queueResponses) {
			id = p.queueResponses[p.queueCalls]
		}
		p.queueCalls++
		json.NewEncoder(w).Encode(map[string]string{"d": id})
	})

	mux.HandleFunc("/Services/LongRunningFileRequest.svc/PollTaskStatus", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Guid string `json:"guid"`
		}
		require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(p.t, "abc123", body.Guid)

		status := 3
		if p.pollCalls < len(p.pollStatuses) {
			status = p.pollStatuses[p.pollCalls]
		}
		p.pollCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"d": map[string]any{"requestStatus": status},
		})
	})

	mux.HandleFunc("/Services/LongRunningFileRequest.svc/GetTask", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"d": map[string]any{
				"filename":   "LearningTasks-2024.csv",
				"cdn_fileId": "cdn-99",
			},
		})
	})

	mux.HandleFunc("/Services/FileDownload/FileRequestHandler", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(p.t, "9", r.URL.Query().Get("FileDownloadType"))
		require.Equal(p.t, "cdn-99", r.URL.Query().Get("file"))
		p.downloads++
		fmt.Fprint(w, "Task,Result\nEssay,A\n")
	})

	mux.HandleFunc("/Services/Reports.svc/GetCycles", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Page  int `json:"page"`
			Start int `json:"start"`
			Limit int `json:"limit"`
		}
		require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(p.t, 25, body.Limit)
		require.Equal(p.t, (body.Page-1)*25, body.Start)

		size := 0
		if p.cycleRequests < len(p.cyclePages) {
			size = p.cyclePages[p.cycleRequests]
		}
		p.cycleRequests++

		cycles := make([]Cycle, size)
		for i := range cycles {
			id := body.Start + i + 1
			cycles[i] = Cycle{Id: id, Name: fmt.Sprintf("Cycle %d", id), Year: 2024}
		}
		json.NewEncoder(w).Encode(map[string]any{"d": cycles})
	})

	mux.HandleFunc("/Services/FileDownload/CsvRequestHandler", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(p.t, "38", r.URL.Query().Get("type"))
		fmt.Fprint(w, "SUSSI ID,Last Name\nABC0001,Smith\n")
	})

	return mux
}

func newTestClient(t *testing.T, portal *fakePortal) *Client {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/compass")
	t.Cleanup(cleanup)

	server := httptest.NewServer(portal.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Options{
		SchoolCode:  "gwsc",
		BaseUrl:     server.URL,
		MinInterval: time.Millisecond,
		Jobs: asyncjob.Options{
			SubmitBackoff: time.Millisecond,
			PollInterval:  time.Millisecond,
		},
	}, Credentials{Username: "admin", Password: "hunter2"})
	require.NoError(t, err)
	return client
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/compass")
	t.Cleanup(cleanup)

	portal := &fakePortal{t: t}
	server := httptest.NewServer(portal.handler())
	t.Cleanup(server.Close)

	_, err := NewClient(context.Background(), Options{
		SchoolCode:  "gwsc",
		BaseUrl:     server.URL,
		MinInterval: time.Millisecond,
	}, Credentials{Username: "admin", Password: "wrong"})
	require.ErrorIs(t, err, session.AuthenticationFailed)
	require.ErrorIs(t, err, LoginFailed)
}

func TestExportLearningTasks(t *testing.T) {
	portal := &fakePortal{
		t:              t,
		queueResponses: []string{"abc123"},
		pollStatuses:   []int{1, 1, 2, 3},
	}
	client := newTestClient(t, portal)
	dir := t.TempDir()

	file, err := client.ExportLearningTasks(context.Background(), 2024, "2024", dir)
	require.NoError(t, err)
	require.Equal(t, "LearningTasks-2024.csv", file.Name)
	require.Equal(t, filepath.Join(dir, "LearningTasks-2024.csv"), file.Path)
	require.Equal(t, 4, portal.pollCalls)
	require.Equal(t, 1, portal.downloads)

	contents, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	require.Equal(t, "Task,Result\nEssay,A\n", string(contents))
}

func TestExportRetriesSubmission(t *testing.T) {
	portal := &fakePortal{
		t:              t,
		queueResponses: []string{"", "", "", "", "abc123"},
		pollStatuses:   []int{3},
	}
	client := newTestClient(t, portal)

	_, err := client.ExportLearningTasks(context.Background(), 2024, "2024", t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 5, portal.queueCalls)
}

func TestExportSubmissionExhaustion(t *testing.T) {
	portal := &fakePortal{
		t:              t,
		queueResponses: []string{"", "", "", ""},
	}
	client := newTestClient(t, portal)
	client.jobs = asyncjob.NewClient(jobBackend{client.Session}, asyncjob.Options{
		Codes:          StatusCodes,
		SubmitAttempts: 4,
		SubmitBackoff:  time.Millisecond,
	})

	_, err := client.ExportLearningTasks(context.Background(), 2024, "2024", t.TempDir())
	require.ErrorIs(t, err, asyncjob.SubmissionFailed)
	require.Equal(t, 4, portal.queueCalls)
}

func TestReportCycles(t *testing.T) {
	portal := &fakePortal{
		t:          t,
		cyclePages: []int{25, 25, 10},
	}
	client := newTestClient(t, portal)

	cycles, err := client.ReportCycles(context.Background())
	require.NoError(t, err)
	require.Len(t, cycles, 60)
	require.Equal(t, 3, portal.cycleRequests)
	require.Equal(t, "Cycle 1", cycles[0].Name)
	require.Equal(t, "Cycle 60", cycles[59].Name)
}

func TestExportStudentDetails(t *testing.T) {
	portal := &fakePortal{t: t}
	client := newTestClient(t, portal)
	dir := t.TempDir()

	file, err := client.ExportStudentDetails(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, "StudentDetails.csv", file.Name)

	contents, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "ABC0001")
}
