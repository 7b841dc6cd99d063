package models

import (
	"errors"
	"log"
	"math"
	"placeserver/db"
	"placeserver/storage"

	"github.com/zsefvlol/timezonemapper"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Place struct {
	ID          uint64 `gorm:"primaryKey"`
	CreatedAt   int64
	UpdatedAt   int64
	Title       string  `gorm:"type:varchar(200);not null"`
	Description string  `gorm:"type:varchar(2000)"`
	Address     string  `gorm:"type:varchar(300)"`
	Lat         float64 `gorm:"type:double;not null"`
	Lng         float64 `gorm:"type:double;not null"`
	Image       string  `gorm:"type:varchar(300)"`
	Thumb       string  `gorm:"type:varchar(300)"`
	BucketID    uint64
	Bucket      storage.Bucket `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	CreatorID   uint64         `gorm:"index;not null"`
	Creator     User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// CanMutate reports whether the given user may update or delete this place.
// Single-owner model, no roles.
func (p *Place) CanMutate(userID uint64) bool {
	return p.CreatorID == userID
}

// Timezone maps the place coordinates to an IANA timezone name.
func (p *Place) Timezone() string {
	return timezonemapper.LatLngToTimezoneString(p.Lat, p.Lng)
}

func validCoordinates(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return false
	}
	if math.IsNaN(*lat) || math.IsInf(*lat, 0) || math.IsNaN(*lng) || math.IsInf(*lng, 0) {
		return false
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}

// lockOwnerRow takes a FOR UPDATE row lock so concurrent mutations for the
// same owner serialize on the user row instead of overwriting each other's
// PlaceIDs. SQLite has no row locks and serializes writers itself.
func lockOwnerRow(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CreatePlace inserts a new place owned by ownerID and appends its id to the
// owner's PlaceIDs. Both writes happen in one transaction: either the place
// row and the owner's list both change, or neither does. The owner row is
// read locked inside that transaction, so two concurrent creates for the
// same owner cannot read the same list and drop each other's entry.
func CreatePlace(ownerID uint64, title, description, address, image, thumb string, bucketID uint64, lat, lng *float64) (Place, error) {
	if !validCoordinates(lat, lng) {
		return Place{}, ErrValidation
	}
	place := Place{
		Title:       title,
		Description: description,
		Address:     address,
		Lat:         *lat,
		Lng:         *lng,
		Image:       image,
		Thumb:       thumb,
		BucketID:    bucketID,
		CreatorID:   ownerID,
	}
	err := db.Instance.Transaction(func(tx *gorm.DB) error {
		var owner User
		if err := lockOwnerRow(tx).First(&owner, ownerID).Error; err != nil {
			return err
		}
		if err := tx.Create(&place).Error; err != nil {
			return err
		}
		owner.PlaceIDs = append(owner.PlaceIDs, place.ID)
		return tx.Save(&owner).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Place{}, ErrNotFound
		}
		log.Printf("CreatePlace: transaction: %v", err)
		return Place{}, ErrDB
	}
	return place, nil
}

// DeletePlace removes the place and the corresponding entry in the owner's
// PlaceIDs in one transaction. Ownership is checked before anything is
// deleted, so a rejected request leaves the record intact. The deleted place
// is returned so the caller can release its image files.
func DeletePlace(placeID, requesterID uint64) (Place, error) {
	place, err := GetPlace(placeID)
	if err != nil {
		return Place{}, err
	}
	if !place.CanMutate(requesterID) {
		return Place{}, ErrNotOwner
	}
	err = db.Instance.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&Place{}, placeID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// A concurrent request deleted it first.
			return ErrNotFound
		}
		var owner User
		if err := lockOwnerRow(tx).First(&owner, place.CreatorID).Error; err != nil {
			return err
		}
		owner.removePlaceID(placeID)
		return tx.Save(&owner).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Place{}, ErrNotFound
		}
		log.Printf("DeletePlace: transaction: %v", err)
		return Place{}, ErrDB
	}
	return place, nil
}

// UpdatePlace changes title and description only. Creator and coordinates are
// immutable, so this is a single-record write and needs no transaction.
func UpdatePlace(placeID, requesterID uint64, title, description string) (Place, error) {
	place, err := GetPlace(placeID)
	if err != nil {
		return Place{}, err
	}
	if !place.CanMutate(requesterID) {
		return Place{}, ErrNotOwner
	}
	place.Title = title
	place.Description = description
	if err := db.Instance.Save(&place).Error; err != nil {
		log.Printf("UpdatePlace: save: %v", err)
		return Place{}, ErrDB
	}
	return place, nil
}

func GetPlace(placeID uint64) (place Place, err error) {
	if err = db.Instance.Joins("Bucket").First(&place, "places.id = ?", placeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Place{}, ErrNotFound
		}
		log.Printf("GetPlace: %v", err)
		return Place{}, ErrDB
	}
	return place, nil
}

// PlacesForUser returns the places owned by the given user in creation order.
// A user with no places yields an empty slice, not an error.
func PlacesForUser(userID uint64) ([]Place, error) {
	places := []Place{}
	if err := db.Instance.Where("creator_id = ?", userID).Order("id").Find(&places).Error; err != nil {
		log.Printf("PlacesForUser: %v", err)
		return nil, ErrDB
	}
	return places, nil
}
