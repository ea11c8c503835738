package oars

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

	"edexport-backend/lib/session"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const school = "stleonards"

const loginPage = `<!DOCTYPE html>
<html><body>
<form method="post">
<input type="hidden" name="security[token]" value="csrf-token-1">
<input type="text" name="username">
<input type="password" name="password">
</form>
</body></html>`

// the portal json-escapes slashes inside the inline script
const reportsPage = `<!DOCTYPE html>
<html><body>
<script>
var oarsData = {"securityToken":"tok\/abc+123","school":"stleonards"};
</script>
</body></html>`

type fakePortal struct {
	t   *testing.T
	mux *http.ServeMux

	loginForms      []map[string]string
	rejectLogin     bool
	candidateIds    []string
	candidateChunks []int
	sittingIds      []string
	sittingChunks   []int
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{t: t, mux: http.NewServeMux()}

	p.mux.HandleFunc("/"+school, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		require.NoError(t, r.ParseForm())
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		p.loginForms = append(p.loginForms, form)
		if p.rejectLogin {
			fmt.Fprint(w, loginPage)
			return
		}
		fmt.Fprint(w, "<html><body>dashboard</body></html>")
	})
	p.mux.HandleFunc("/"+school+"/reports-new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, reportsPage)
	})

	api := func(path string, handler http.HandlerFunc) {
		p.mux.HandleFunc("/api/"+school+"/"+path, handler)
	}
	api("reports-new/getTests/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{
				"id": "1", "testId": "77", "name": "PAT Maths 4th Edition",
				"scale_id": "5", "reportType": "Pat",
				"forms": [
					{"id": "10", "formId": "9", "name": "PAT Maths Test 6"},
					{"id": "11", "formId": "12", "name": "PAT Maths Test 7"}
				]
			},
			{
				"id": "2", "testId": "80", "name": "eWrite",
				"scale_id": "", "reportType": "Writing", "forms": []
			}
		]`)
	})
	api("reports-new/getScaleConstruct", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "5", r.URL.Query().Get("scale_id"))
		fmt.Fprint(w, `{"id": "5", "slug": "maths"}`)
	})
	api("candidates/getCandidateIds", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("enrolled"))
		require.NoError(t, json.NewEncoder(w).Encode(p.candidateIds))
	})
	api("candidates/getCandidatesByIds/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ids           []string `json:"ids"`
			SecurityToken string   `json:"security_token"`
			WithForms     string   `json:"withForms"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "tok/abc+123", body.SecurityToken)
		require.Equal(t, "true", body.WithForms)
		p.candidateChunks = append(p.candidateChunks, len(body.Ids))

		candidates := make([]Candidate, len(body.Ids))
		for i, id := range body.Ids {
			candidates[i] = Candidate{"id": id, "enrolled": true}
		}
		require.NoError(t, json.NewEncoder(w).Encode(candidates))
	})
	api("reports-new/getSittingIdsByTestForm/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		require.Equal(t, "maths", query.Get("scale_slug"))
		require.Equal(t, "completed", query.Get("sitting_status"))
		require.NoError(t, json.NewEncoder(w).Encode(map[string]map[string][]string{
			query.Get("test_id"): {query.Get("form_id"): p.sittingIds},
		}))
	})
	api("reports-new/getGroupReportSittingsByIds.ajax", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ids           []string `json:"ids"`
			SecurityToken string   `json:"security_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "tok/abc+123", body.SecurityToken)
		p.sittingChunks = append(p.sittingChunks, len(body.Ids))

		sittings := make([]Sitting, len(body.Ids))
		for i, id := range body.Ids {
			sittings[i] = Sitting{"sitting_id": id, "score": float64(i)}
		}
		require.NoError(t, json.NewEncoder(w).Encode(sittings))
	})
	api("staff/exportExcel", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, school+"-staff", r.PostForm.Get("export_name"))
		require.Equal(t, "tok/abc+123", r.PostForm.Get("security_token"))
		fmt.Fprint(w, `{"filename": "tmp/staff-export-1.xlsx"}`)
	})
	api("clients/downloadFile", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tmp/staff-export-1.xlsx", r.URL.Query().Get("filePath"))
		require.Equal(t, "tok/abc+123", r.URL.Query().Get("security[token]"))
		fmt.Fprint(w, "staff spreadsheet bytes")
	})

	return p
}

func makeIds(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}
	return ids
}

func newTestClient(t *testing.T, portal *fakePortal) *Client {
	srv := httptest.NewServer(portal.mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Options{
		School:      school,
		BaseUrl:     srv.URL,
		MinInterval: time.Millisecond,
	}, Credentials{
		School:   school,
		Username: "exporter",
		Password: "hunter2",
	})
	require.NoError(t, err)
	return client
}

func TestNewClientScrapesSecurityToken(t *testing.T) {
	portal := newFakePortal(t)
	client := newTestClient(t, portal)

	require.Equal(t, "tok/abc+123", client.securityToken)
	require.Len(t, client.Tests(), 2)
	require.Equal(t, map[string]string{"5": "maths"}, client.scaleSlugs)

	require.Len(t, portal.loginForms, 1)
	require.Equal(t, "csrf-token-1", portal.loginForms[0]["security[token]"])
	require.Equal(t, "exporter", portal.loginForms[0]["username"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	portal := newFakePortal(t)
	portal.rejectLogin = true
	srv := httptest.NewServer(portal.mux)
	t.Cleanup(srv.Close)

	_, err := NewClient(context.Background(), Options{
		School:      school,
		BaseUrl:     srv.URL,
		MinInterval: time.Millisecond,
	}, Credentials{School: school, Username: "exporter", Password: "wrong"})
	require.ErrorIs(t, err, session.AuthenticationFailed)
	require.ErrorIs(t, err, LoginFailed)
}

func TestCandidatesFetchesInChunks(t *testing.T) {
	portal := newFakePortal(t)
	portal.candidateIds = makeIds(120)
	client := newTestClient(t, portal)

	candidates, err := client.Candidates(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, candidates, 120)
	require.Equal(t, []int{50, 50, 20}, portal.candidateChunks)
	require.Equal(t, "id0", candidates[0].Id())
	require.Equal(t, "id119", candidates[119].Id())
}

func TestPATSittingsFetchesInChunks(t *testing.T) {
	portal := newFakePortal(t)
	portal.sittingIds = makeIds(230)
	client := newTestClient(t, portal)

	test, err := client.Tests().FromName("PAT Maths 4th Edition")
	require.NoError(t, err)
	form, err := test.FormFromName("PAT Maths Test 6")
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	sittings, err := client.PATSittings(context.Background(), test, form, from, to)
	require.NoError(t, err)
	require.Len(t, sittings, 230)
	require.Equal(t, []int{100, 100, 30}, portal.sittingChunks)
}

func TestAllPATSittingsSkipsNonPATTests(t *testing.T) {
	portal := newFakePortal(t)
	portal.sittingIds = makeIds(3)
	client := newTestClient(t, portal)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	sittings, err := client.AllPATSittings(context.Background(), from, to)
	require.NoError(t, err)
	// 3 sittings per form, 2 forms, and the eWrite test contributes none
	require.Len(t, sittings, 6)
	require.Equal(t, []int{3, 3}, portal.sittingChunks)
}

func TestFromNameFallsBackToFuzzyMatch(t *testing.T) {
	tests := Tests{
		{Name: "PAT Maths 4th Edition", TestId: "77"},
		{Name: "PAT Reading 5th Edition", TestId: "78"},
	}

	for _, tc := range []struct {
		name string
		want string
	}{
		{"PAT Maths 4th Edition", "77"},
		{"pat maths 4th edition ", "77"},
		{"PAT Mathes 4th Edition", "77"},
		{"PAT Reading 5th Editon", "78"},
	} {
		got, err := tests.FromName(tc.name)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got.TestId, tc.name)
	}

	_, err := tests.FromName("NAPLAN Numeracy")
	require.Error(t, err)
}

func TestExportStaff(t *testing.T) {
	portal := newFakePortal(t)
	client := newTestClient(t, portal)
	dir := t.TempDir()

	file, err := client.ExportStaff(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, school+"-staff.xlsx", file.Name)
	require.Equal(t, filepath.Join(dir, school+"-staff.xlsx"), file.Path)

	contents, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	if diff := cmp.Diff("staff spreadsheet bytes", string(contents)); diff != "" {
		t.Fatalf("unexpected staff export contents (-want +got):\n%s", diff)
	}
}
