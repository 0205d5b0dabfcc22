package handlers

import (
	"bytes"
	"encoding/json"
	"html"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjbphoto/gallery/backend/backendtest"
	"github.com/mjbphoto/gallery/cache"
	"github.com/mjbphoto/gallery/dashboard"
	"github.com/mjbphoto/gallery/gallery"
	"github.com/mjbphoto/gallery/guard"
	"github.com/mjbphoto/gallery/logging"
	"github.com/mjbphoto/gallery/models"
	"github.com/mjbphoto/gallery/web"
)

type site struct {
	router  http.Handler
	rec     *backendtest.Recorder
	auth    *backendtest.Auth
	table   *backendtest.Table
	objects *backendtest.Objects
}

func newSite(t *testing.T, seed ...models.Photo) *site {
	t.Helper()
	log := logging.Nop()
	rec := &backendtest.Recorder{}
	client, auth, table, objects := backendtest.Client(rec, seed...)

	renderer, err := NewRenderer(web.Templates, log)
	require.NoError(t, err)

	galleryService := gallery.NewService(client.Photos, cache.NewMemory(), time.Minute, log)
	dashboardService := dashboard.NewService(client, nil, log)
	routeGuard := guard.New(client.Auth, "/login", log)

	pages := &PageHandler{Gallery: galleryService, Render: renderer, Log: log}
	authHandler := &AuthHandler{Auth: client.Auth, Render: renderer, Log: log}
	admin := &AdminHandler{Dashboard: dashboardService, Render: renderer, Log: log, MaxUploadBytes: 1 << 20}
	api := &APIHandler{Gallery: galleryService, Dashboard: dashboardService, Log: log, MaxUploadBytes: 1 << 20}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(LimitBody(1 << 20))
		r.Use(CSRF([]byte("0123456789abcdef0123456789abcdef"), false, FormRejected(renderer, 1<<20), log))
		r.Get("/gallery/{category}", pages.ShowGallery)
		r.Get("/gallery/{category}/{id}", pages.Detail)
		r.Get("/login", authHandler.LoginForm)
		r.Post("/login", authHandler.Login)
		r.Route("/admin", func(r chi.Router) {
			r.Use(routeGuard.Middleware)
			r.Get("/", admin.Index)
			r.Post("/logout", authHandler.Logout)
			r.Post("/photos", admin.Create)
			r.Post("/photos/{id}", admin.Update)
			r.Get("/photos/{id}/edit", admin.EditForm)
			r.Get("/photos/{id}/delete", admin.DeleteForm)
			r.Post("/photos/{id}/delete", admin.Delete)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/gallery/{category}", api.GalleryPhotos)
		r.Route("/admin", func(r chi.Router) {
			r.Use(routeGuard.APIMiddleware(APIUnauthorized))
			r.Get("/photos", api.ListPhotos)
			r.Post("/photos", api.CreatePhoto)
			r.Put("/photos/{id}", api.UpdatePhoto)
			r.Delete("/photos/{id}", api.DeletePhoto)
		})
	})
	r.NotFound(pages.NotFound)

	return &site{router: r, rec: rec, auth: auth, table: table, objects: objects}
}

func (s *site) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *site) signedIn(req *http.Request) *http.Request {
	sess := s.auth.Issue(time.Hour)
	req.AddCookie(&http.Cookie{Name: guard.SessionCookie, Value: sess.AccessToken})
	return req
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

const csrfCookie = "_gorilla_csrf"

var tokenField = regexp.MustCompile(`name="` + CSRFFieldName + `" value="([^"]*)"`)

// formToken loads the login page the way a browser would and returns the
// anti-forgery cookie together with the token embedded in its form.
func (s *site) formToken(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	res := s.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var cookie *http.Cookie
	for _, c := range res.Result().Cookies() {
		if c.Name == csrfCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "page sets the anti-forgery cookie")
	m := tokenField.FindStringSubmatch(res.Body.String())
	require.Len(t, m, 2, "form carries the token field")
	return cookie, html.UnescapeString(m[1])
}

// post builds a form submission carrying a valid token.
func (s *site) post(t *testing.T, target string, values url.Values) *http.Request {
	t.Helper()
	cookie, token := s.formToken(t)
	if values == nil {
		values = url.Values{}
	}
	values.Set(CSRFFieldName, token)
	req := postForm(target, values)
	req.AddCookie(cookie)
	return req
}

// upload builds an admin upload carrying a valid token.
func (s *site) upload(t *testing.T, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	cookie, token := s.formToken(t)
	withToken := map[string]string{CSRFFieldName: token}
	for k, v := range fields {
		withToken[k] = v
	}
	req := multipartUpload(t, "/admin/photos", withToken, filename, data)
	req.AddCookie(cookie)
	return req
}

func seed() []models.Photo {
	return []models.Photo{{
		ID: 1, URL: backendtest.PublicBase + "/1.jpg", Title: "Harbor", Location: "Aewol",
		Category: models.CategoryJeju, CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}}
}

func TestGalleryEmptyState(t *testing.T) {
	s := newSite(t)
	res := s.do(httptest.NewRequest(http.MethodGet, "/gallery/jeju", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "No photos yet")
	assert.Equal(t, []string{"select JEJU"}, s.rec.Ops())
}

func TestGalleryUnknownCategory(t *testing.T) {
	s := newSite(t)
	res := s.do(httptest.NewRequest(http.MethodGet, "/gallery/osaka", nil))

	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Empty(t, s.rec.Ops())
}

func TestDetailOverlayLocksScroll(t *testing.T) {
	s := newSite(t, seed()...)

	res := s.do(httptest.NewRequest(http.MethodGet, "/gallery/jeju/1", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `<body class="modal-open">`)
	assert.Contains(t, res.Body.String(), "Aewol")

	res = s.do(httptest.NewRequest(http.MethodGet, "/gallery/jeju", nil))
	assert.NotContains(t, res.Body.String(), "modal-open")

	res = s.do(httptest.NewRequest(http.MethodGet, "/gallery/sapporo/1", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestAdminRedirectsAnonymousVisitors(t *testing.T) {
	s := newSite(t, seed()...)
	res := s.do(httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))
	assert.Empty(t, s.rec.Ops(), "no dashboard data is loaded")

	// the notice is shown on the login page
	login := httptest.NewRequest(http.MethodGet, "/login", nil)
	for _, c := range res.Result().Cookies() {
		login.AddCookie(c)
	}
	page := s.do(login)
	assert.Contains(t, page.Body.String(), guard.NoticeAdminsOnly)
}

func TestLoginFlow(t *testing.T) {
	s := newSite(t)

	res := s.do(s.post(t, "/login", url.Values{"email": {"admin@example.com"}, "password": {"wrong"}}))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), NoticeLoginFailed)

	res = s.do(s.post(t, "/login", url.Values{"email": {"admin@example.com"}, "password": {"secret"}}))
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/admin", res.Header().Get("Location"))

	next := httptest.NewRequest(http.MethodGet, "/admin", nil)
	var session *http.Cookie
	for _, c := range res.Result().Cookies() {
		next.AddCookie(c)
		if c.Name == guard.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	page := s.do(next)
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), NoticeWelcome)
	assert.Equal(t, "no-store", page.Header().Get("Cache-Control"))
}

func TestLogoutRevokesSession(t *testing.T) {
	s := newSite(t)
	sess := s.auth.Issue(time.Hour)

	req := s.post(t, "/admin/logout", nil)
	req.AddCookie(&http.Cookie{Name: guard.SessionCookie, Value: sess.AccessToken})
	res := s.do(req)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))

	again := httptest.NewRequest(http.MethodGet, "/admin", nil)
	again.AddCookie(&http.Cookie{Name: guard.SessionCookie, Value: sess.AccessToken})
	assert.Equal(t, http.StatusSeeOther, s.do(again).Code)
}

func multipartUpload(t *testing.T, target string, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateWithoutFileMakesNoRequests(t *testing.T) {
	s := newSite(t, seed()...)
	req := s.signedIn(s.upload(t, map[string]string{"title": "Harbor", "location": "Aewol", "category": "JEJU"}, "", nil))
	res := s.do(req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), NoticeChooseFile)
	assert.Contains(t, res.Body.String(), `value="Harbor"`, "typed fields are kept")
	assert.Empty(t, s.rec.Ops())
	assert.Contains(t, res.Body.String(), `href="/admin">Show photos</a>`)
}

func TestCreateStoresObjectThenRow(t *testing.T) {
	s := newSite(t)
	req := s.signedIn(s.upload(t, map[string]string{"title": "Harbor", "location": "Aewol", "category": "jeju"}, "harbor.jpg", []byte("jpeg bytes")))
	res := s.do(req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), NoticeUploaded)
	rows := s.table.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, models.CategoryJeju, rows[0].Category)
	require.Len(t, s.objects.Names(), 1)
	name := s.objects.Names()[0]
	assert.Equal(t, backendtest.PublicBase+"/"+name, rows[0].URL)
	assert.Equal(t, []string{"upload " + name, "insert " + rows[0].URL, "select *"}, s.rec.Ops())
}

func TestFormPostsWithoutTokenAreRejected(t *testing.T) {
	s := newSite(t, seed()...)
	s.objects.Put("1.jpg", []byte("x"))

	res := s.do(s.signedIn(postForm("/admin/photos/1/delete", url.Values{"confirm": {"yes"}})))
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), NoticeFormExpired)

	cookie, _ := s.formToken(t)
	forged := s.signedIn(postForm("/admin/photos/1/delete", url.Values{"confirm": {"yes"}, CSRFFieldName: {"bm90LWEtdG9rZW4="}}))
	forged.AddCookie(cookie)
	assert.Equal(t, http.StatusForbidden, s.do(forged).Code)

	res = s.do(postForm("/login", url.Values{"email": {"admin@example.com"}, "password": {"secret"}}))
	assert.Equal(t, http.StatusForbidden, res.Code)

	assert.Empty(t, s.rec.Ops())
	assert.Len(t, s.table.Rows(), 1)
	assert.True(t, s.objects.Has("1.jpg"))
}

func TestDeleteOverlayAsksForConfirmation(t *testing.T) {
	s := newSite(t, seed()...)

	res := s.do(s.signedIn(httptest.NewRequest(http.MethodGet, "/admin/photos/1/delete", nil)))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `<body class="modal-open">`)
	assert.Contains(t, res.Body.String(), `action="/admin/photos/1/delete"`)
	assert.Contains(t, res.Body.String(), `<input type="hidden" name="confirm" value="yes">`)
	assert.Regexp(t, tokenField, res.Body.String())

	res = s.do(s.signedIn(httptest.NewRequest(http.MethodGet, "/admin/photos/9/delete", nil)))
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.NotContains(t, res.Body.String(), "modal-open")
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	s := newSite(t, seed()...)
	s.objects.Put("1.jpg", []byte("x"))

	res := s.do(s.signedIn(s.post(t, "/admin/photos/1/delete", url.Values{})))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), NoticeConfirmDelete)
	assert.Len(t, s.table.Rows(), 1)
	assert.Empty(t, s.rec.Ops())

	res = s.do(s.signedIn(s.post(t, "/admin/photos/1/delete", url.Values{"confirm": {"yes"}})))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), NoticeDeleted)
	assert.Empty(t, s.table.Rows())
	assert.False(t, s.objects.Has("1.jpg"))
	assert.Equal(t, []string{"get 1", "remove 1.jpg", "delete 1", "select *"}, s.rec.Ops())
}

func TestEditOverlayAndInvalidUpdate(t *testing.T) {
	s := newSite(t, seed()...)

	res := s.do(s.signedIn(httptest.NewRequest(http.MethodGet, "/admin/photos/1/edit", nil)))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `<body class="modal-open">`)
	assert.Contains(t, res.Body.String(), `value="Aewol"`)

	s.rec.Reset()
	res = s.do(s.signedIn(s.post(t, "/admin/photos/1", url.Values{"title": {"Port"}, "location": {" "}, "category": {"JEJU"}})))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), `value="Port"`)
	assert.Contains(t, res.Body.String(), `<body class="modal-open">`)
	assert.Equal(t, "Harbor", s.table.Rows()[0].Title)
	assert.Empty(t, s.rec.Ops())

	res = s.do(s.signedIn(s.post(t, "/admin/photos/1", url.Values{"title": {"Port"}, "location": {"Hallim"}, "category": {"SAPPORO"}})))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, models.CategorySapporo, s.table.Rows()[0].Category)
	assert.NotContains(t, res.Body.String(), "modal-open")
	assert.Equal(t, []string{"update 1", "select *"}, s.rec.Ops())
}

func TestAPICreatePhoto(t *testing.T) {
	s := newSite(t)
	token := s.auth.Issue(time.Hour).AccessToken

	req := multipartUpload(t, "/api/admin/photos", map[string]string{"title": "Harbor", "location": "Aewol", "category": "JEJU"}, "", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := s.do(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), CodeNoFile)
	assert.Empty(t, s.rec.Ops())

	req = multipartUpload(t, "/api/admin/photos", map[string]string{"title": "Harbor", "location": "Aewol", "category": "jeju"}, "harbor.jpg", []byte("jpeg bytes"))
	req.Header.Set("Authorization", "Bearer "+token)
	res = s.do(req)
	require.Equal(t, http.StatusCreated, res.Code)
	var body struct {
		Photos []models.Photo `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Len(t, body.Photos, 1)
	assert.Equal(t, "Harbor", body.Photos[0].Title)
	assert.Equal(t, models.CategoryJeju, body.Photos[0].Category)
	assert.Len(t, s.rec.Ops(), 3)
}

func TestAPIRequiresBearerSession(t *testing.T) {
	s := newSite(t, seed()...)

	res := s.do(httptest.NewRequest(http.MethodGet, "/api/admin/photos", nil))
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, CodeUnauthorized, body.Errors[0].Code)
	assert.Empty(t, s.rec.Ops())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/photos", nil)
	req.Header.Set("Authorization", "Bearer "+s.auth.Issue(time.Hour).AccessToken)
	res = s.do(req)
	assert.Equal(t, http.StatusOK, res.Code)
	var list struct {
		Photos []models.Photo `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &list))
	require.Len(t, list.Photos, 1)
	assert.Equal(t, "Harbor", list.Photos[0].Title)
}

func TestAPIDeleteAndUpdate(t *testing.T) {
	s := newSite(t, seed()...)
	token := s.auth.Issue(time.Hour).AccessToken

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/photos/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := s.do(req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), CodeNotConfirmed)

	req = httptest.NewRequest(http.MethodPut, "/api/admin/photos/9", strings.NewReader(`{"title":"a","location":"b","category":"JEJU"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	res = s.do(req)
	assert.Equal(t, http.StatusNotFound, res.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/admin/photos/1?confirm=true", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res = s.do(req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"photos":[]}`, res.Body.String())
}

func TestAPIGallerySorting(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newSite(t,
		models.Photo{ID: 1, Title: "img10", Category: models.CategoryJeju, CreatedAt: base},
		models.Photo{ID: 2, Title: "img2", Category: models.CategoryJeju, CreatedAt: base.Add(time.Hour)},
	)

	res := s.do(httptest.NewRequest(http.MethodGet, "/api/gallery/JEJU?sort="+gallery.SortTitleNat, nil))
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Sort   string         `json:"sort"`
		Photos []models.Photo `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, gallery.SortTitleNat, body.Sort)
	require.Len(t, body.Photos, 2)
	assert.Equal(t, "img2", body.Photos[0].Title)
}

func TestUnmatchedRouteRendersNotFound(t *testing.T) {
	s := newSite(t)
	res := s.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "Page not found")
}
