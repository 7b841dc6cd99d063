package handlers

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"placeserver/config"
	"placeserver/db"
	"placeserver/models"
	"placeserver/storage"
	"placeserver/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

type PlaceCreateRequest struct {
	Title       string   `form:"title" binding:"required"`
	Description string   `form:"description" binding:"required"`
	Address     string   `form:"address" binding:"required"`
	Lat         *float64 `form:"lat" binding:"required"`
	Lng         *float64 `form:"lng" binding:"required"`
}

type PlaceUpdateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
}

type PlaceInfo struct {
	ID          uint64  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Address     string  `json:"address"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Creator     uint64  `json:"creator"`
	Image       string  `json:"image"`
	Timezone    string  `json:"timezone"`
}

func placeInfo(place *models.Place) PlaceInfo {
	return PlaceInfo{
		ID:          place.ID,
		Title:       place.Title,
		Description: place.Description,
		Address:     place.Address,
		Lat:         place.Lat,
		Lng:         place.Lng,
		Creator:     place.CreatorID,
		Image:       "/place/" + strconv.FormatUint(place.ID, 10) + "/image",
		Timezone:    place.Timezone(),
	}
}

func storageForUser(user *models.User) storage.StorageAPI {
	if user.BucketID != nil {
		bucket := storage.Bucket{ID: *user.BucketID}
		if db.Instance.Find(&bucket).Error == nil {
			if s := storage.StorageFrom(&bucket); s != nil {
				return s
			}
		}
	}
	return storage.GetDefaultStorage()
}

// PlaceCreate stores the uploaded image, then runs the transactional
// place-insert + owner-list update. A failed transaction removes the file
// again, so no orphan uploads are left behind.
func PlaceCreate(c *gin.Context, user *models.User) {
	r := PlaceCreateRequest{}
	if err := c.ShouldBind(&r); err != nil {
		c.JSON(http.StatusUnprocessableEntity, Response{err.Error()})
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, Response{"image file is required"})
		return
	}
	reader, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{"cannot read upload"})
		return
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{"cannot read upload"})
		return
	}

	store := storageForUser(user)
	if store == nil {
		c.JSON(http.StatusInternalServerError, Response{"no storage available"})
		return
	}
	name := uuid.NewString()
	subDir := "user/" + strconv.FormatUint(user.ID, 10) + "/"
	imagePath := subDir + name + filepath.Ext(file.Filename)
	if _, err = store.Save(imagePath, bytes.NewReader(data)); err != nil {
		log.Printf("Place image save error: %v", err)
		c.JSON(http.StatusInternalServerError, Response{"cannot store upload"})
		return
	}
	// Thumbnail is nice-to-have - a failure doesn't fail the upload
	thumbPath := ""
	var thumb bytes.Buffer
	if _, err = utils.CreateThumb(uint(config.THUMB_SIZE), bytes.NewReader(data), &thumb); err != nil {
		log.Printf("Place thumb error: %v", err)
	} else {
		thumbPath = subDir + name + "_thumb.jpg"
		if _, err = store.Save(thumbPath, &thumb); err != nil {
			log.Printf("Place thumb save error: %v", err)
			thumbPath = ""
		}
	}

	// Record the bucket the files actually went to, not the user's preference
	place, err := models.CreatePlace(user.ID, r.Title, r.Description, r.Address, imagePath, thumbPath, store.GetBucket().ID, r.Lat, r.Lng)
	if err != nil {
		// The record never existed - take the files back out
		releaseFiles(store, imagePath, thumbPath)
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, placeInfo(&place))
}

func PlaceGet(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	place, err := models.GetPlace(id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, placeInfo(&place))
}

// PlaceListByUser returns an empty array, not 404, for a user with no places.
func PlaceListByUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	places, err := models.PlacesForUser(id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	result := []PlaceInfo{}
	for i := range places {
		result = append(result, placeInfo(&places[i]))
	}
	c.JSON(http.StatusOK, result)
}

func PlaceImage(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	place, err := models.GetPlace(id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	store := storage.StorageFrom(&place.Bucket)
	if store == nil {
		c.JSON(http.StatusInternalServerError, Response{"no storage available"})
		return
	}
	path := place.Image
	if c.Query("thumb") == "1" && place.Thumb != "" {
		path = place.Thumb
	}
	c.Header("cache-control", "private, max-age=604800")
	store.Serve(path, c.Request, c.Writer)
}

func PlaceUpdate(c *gin.Context, user *models.User) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	r := PlaceUpdateRequest{}
	if err := c.ShouldBindWith(&r, binding.JSON); err != nil {
		c.JSON(http.StatusUnprocessableEntity, Response{err.Error()})
		return
	}
	place, err := models.UpdatePlace(id, user.ID, r.Title, r.Description)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, placeInfo(&place))
}

// PlaceDelete responds as soon as the transaction commits; the image files
// are released in the background and a failure there is only logged.
func PlaceDelete(c *gin.Context, user *models.User) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	place, err := models.DeletePlace(id, user.ID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	go releasePlaceFiles(place)
	c.JSON(http.StatusOK, gin.H{"message": "Deleted place."})
}

func releasePlaceFiles(place models.Place) {
	store := storage.StorageFrom(&place.Bucket)
	if store == nil {
		log.Printf("Place: %d, error: storage is nil", place.ID)
		return
	}
	releaseFiles(store, place.Image, place.Thumb)
}

func releaseFiles(store storage.StorageAPI, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := store.Delete(path); err != nil {
			log.Printf("Image %s delete error: %s", path, err.Error())
		}
		if err := store.DeleteRemoteFile(path); err != nil {
			log.Printf("Remote image %s delete error: %s", path, err.Error())
		}
	}
}
