package models

import (
	"placeserver/db"
	"placeserver/storage"
	"placeserver/utils"
)

type User struct {
	ID        uint64 `gorm:"primaryKey"`
	CreatedAt int64
	UpdatedAt int64
	Name      string `gorm:"type:varchar(100)"`
	Email     string `gorm:"type:varchar(150);index:uniq_email,unique"`
	Password  string `gorm:"type:varchar(128)"`
	PassSalt  string `gorm:"type:varchar(200)"`
	BucketID  *uint64
	Bucket    storage.Bucket `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	// PlaceIDs is the ordered list of places owned by this user. It is only
	// ever mutated together with the place row itself, inside one transaction,
	// so that membership always equals the set of places with CreatorID == ID.
	PlaceIDs []uint64 `gorm:"serializer:json;type:text"`
}

const saltSize = 60

func UserCreate(name, email, plainTextPassword string) (u User, err error) {
	storage := storage.GetDefaultStorage()

	u.Email = email
	u.Name = name
	u.PassSalt = utils.RandSalt(saltSize)
	u.Password = utils.Sha512String(plainTextPassword + u.PassSalt)
	u.PlaceIDs = []uint64{}
	if storage != nil {
		u.BucketID = &storage.GetBucket().ID
	}
	return u, db.Instance.Create(&u).Error
}

func (u *User) SetPassword(plainTextPassword string) {
	u.PassSalt = utils.RandSalt(saltSize)
	u.Password = utils.Sha512String(plainTextPassword + u.PassSalt)
}

func UserLogin(email, plainTextPassword string) (u User, success bool) {
	result := db.Instance.First(&u, "email = ?", email)
	if result.Error != nil {
		return User{}, false
	}
	if u.Password != utils.Sha512String(plainTextPassword+u.PassSalt) {
		return User{}, false
	}
	return u, true
}

// OwnsPlace reports whether the given place id is in the user's list.
func (u *User) OwnsPlace(placeID uint64) bool {
	for _, id := range u.PlaceIDs {
		if id == placeID {
			return true
		}
	}
	return false
}

func (u *User) removePlaceID(placeID uint64) {
	kept := u.PlaceIDs[:0]
	for _, id := range u.PlaceIDs {
		if id != placeID {
			kept = append(kept, id)
		}
	}
	u.PlaceIDs = kept
}
