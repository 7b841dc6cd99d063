package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"placeserver/config"
	"placeserver/db"
	"placeserver/models"
	"placeserver/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestEnv(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.MYSQL_DSN = ""
	config.SQLITE_FILE = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	config.DEFAULT_BUCKET_DIR = t.TempDir()
	db.Init()
	storage.Init()
	models.Init()
}

func testUser(t *testing.T, name string) models.User {
	t.Helper()
	user, err := models.UserCreate(name, name+"@example.com", "secret")
	require.NoError(t, err)
	return user
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func multipartPlaceRequest(t *testing.T, fields map[string]string, imageData []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if imageData != nil {
		part, err := writer.CreateFormFile("image", "test.png")
		require.NoError(t, err)
		_, err = part.Write(imageData)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest("POST", "/place", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func testContext(req *http.Request, id uint64) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if id > 0 {
		c.Params = gin.Params{{Key: "id", Value: strconv.FormatUint(id, 10)}}
	}
	return c, w
}

func validPlaceFields() map[string]string {
	return map[string]string{
		"title":       "Empire State Building",
		"description": "One of the most famous sky scrapers in the world!",
		"address":     "20 W 34th St, New York, NY 10001",
		"lat":         "40.7484474",
		"lng":         "-73.9871516",
	}
}

func createPlaceViaHandler(t *testing.T, user *models.User) PlaceInfo {
	t.Helper()
	c, w := testContext(multipartPlaceRequest(t, validPlaceFields(), pngBytes(t)), 0)
	PlaceCreate(c, user)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info := PlaceInfo{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info
}

func TestPlaceCreateAndGet(t *testing.T) {
	initTestEnv(t)
	user := testUser(t, "alice")

	info := createPlaceViaHandler(t, &user)
	require.NotZero(t, info.ID)
	assert.Equal(t, user.ID, info.Creator)
	assert.Equal(t, "America/New_York", info.Timezone)

	// The image and its thumbnail were written to the bucket
	place, err := models.GetPlace(info.ID)
	require.NoError(t, err)
	store := storage.StorageFrom(&place.Bucket)
	require.NotNil(t, store)
	assert.FileExists(t, store.GetFullPath(place.Image))
	assert.FileExists(t, store.GetFullPath(place.Thumb))

	c, w := testContext(httptest.NewRequest("GET", "/place/x", nil), info.ID)
	PlaceGet(c)
	require.Equal(t, http.StatusOK, w.Code)
	got := PlaceInfo{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, info, got)
}

func TestPlaceCreateValidation(t *testing.T) {
	initTestEnv(t)
	user := testUser(t, "alice")

	tests := []struct {
		name   string
		mutate func(map[string]string)
		image  bool
	}{
		{"missing title", func(f map[string]string) { delete(f, "title") }, true},
		{"missing lat", func(f map[string]string) { delete(f, "lat") }, true},
		{"non-numeric lat", func(f map[string]string) { f["lat"] = "north" }, true},
		{"non-numeric lng", func(f map[string]string) { f["lng"] = "west" }, true},
		{"missing image", func(f map[string]string) {}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validPlaceFields()
			tt.mutate(fields)
			var img []byte
			if tt.image {
				img = pngBytes(t)
			}
			c, w := testContext(multipartPlaceRequest(t, fields, img), 0)
			PlaceCreate(c, &user)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		})
	}

	// Nothing was persisted
	places, err := models.PlacesForUser(user.ID)
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestPlaceCreateUserWithoutBucket(t *testing.T) {
	initTestEnv(t)
	// A user with no bucket preference falls back to the default storage -
	// the place must record the bucket the image actually went to
	user := models.User{Name: "nobucket", Email: "nobucket@example.com", PlaceIDs: []uint64{}}
	require.NoError(t, db.Instance.Create(&user).Error)
	require.Nil(t, user.BucketID)

	info := createPlaceViaHandler(t, &user)
	place, err := models.GetPlace(info.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.GetDefaultStorage().GetBucket().ID, place.BucketID)

	store := storage.StorageFrom(&place.Bucket)
	require.NotNil(t, store)
	assert.FileExists(t, store.GetFullPath(place.Image))

	c, w := testContext(httptest.NewRequest("GET", "/place/x/image", nil), info.ID)
	PlaceImage(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlaceGetMissing(t *testing.T) {
	initTestEnv(t)
	c, w := testContext(httptest.NewRequest("GET", "/place/x", nil), 777)
	PlaceGet(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaceListByUserEmpty(t *testing.T) {
	initTestEnv(t)
	user := testUser(t, "alice")

	c, w := testContext(httptest.NewRequest("GET", "/user/x/places", nil), user.ID)
	PlaceListByUser(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestPlaceUpdate(t *testing.T) {
	initTestEnv(t)
	user := testUser(t, "alice")
	other := testUser(t, "bob")
	info := createPlaceViaHandler(t, &user)

	body := `{"title":"New Title","description":"New description"}`
	req := httptest.NewRequest("PATCH", "/place/x", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c, w := testContext(req, info.ID)
	PlaceUpdate(c, &other)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("PATCH", "/place/x", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c, w = testContext(req, info.ID)
	PlaceUpdate(c, &user)
	require.Equal(t, http.StatusOK, w.Code)
	updated := PlaceInfo{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, info.Lat, updated.Lat)

	// Missing fields are a validation error
	req = httptest.NewRequest("PATCH", "/place/x", strings.NewReader(`{"title":"only"}`))
	req.Header.Set("Content-Type", "application/json")
	c, w = testContext(req, info.ID)
	PlaceUpdate(c, &user)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPlaceDelete(t *testing.T) {
	initTestEnv(t)
	user := testUser(t, "alice")
	other := testUser(t, "bob")
	info := createPlaceViaHandler(t, &user)

	place, err := models.GetPlace(info.ID)
	require.NoError(t, err)
	store := storage.StorageFrom(&place.Bucket)
	require.NotNil(t, store)
	imageFile := store.GetFullPath(place.Image)

	// Not the owner - record and file stay
	c, w := testContext(httptest.NewRequest("DELETE", "/place/x", nil), info.ID)
	PlaceDelete(c, &other)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.FileExists(t, imageFile)

	c, w = testContext(httptest.NewRequest("DELETE", "/place/x", nil), info.ID)
	PlaceDelete(c, &user)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = models.GetPlace(info.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	places, err := models.PlacesForUser(user.ID)
	require.NoError(t, err)
	assert.Empty(t, places)

	// File cleanup is detached from the response
	assert.Eventually(t, func() bool {
		_, err := os.Stat(imageFile)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	// Deleting again reports not-found
	c, w = testContext(httptest.NewRequest("DELETE", "/place/x", nil), info.ID)
	PlaceDelete(c, &user)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaceImage(t *testing.T) {
	initTestEnv(t)
	user := testUser(t, "alice")
	info := createPlaceViaHandler(t, &user)

	req := httptest.NewRequest("GET", "/place/x/image", nil)
	c, w := testContext(req, info.ID)
	PlaceImage(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotZero(t, w.Body.Len())

	req = httptest.NewRequest("GET", "/place/x/image?thumb=1", nil)
	c, w = testContext(req, info.ID)
	PlaceImage(c)
	require.Equal(t, http.StatusOK, w.Code)
}
