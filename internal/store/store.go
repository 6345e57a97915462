// Package store holds the persistent side of the quiz: user accounts and the
// question bank. Room and presence state never touch it; those live only in
// memory for the lifetime of the process.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tamarabolmanac/hajki-quiz/internal/quiz"
)

var ErrNotFound = errors.New("not found")
var ErrEmailTaken = errors.New("email already registered")

type User struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Email          string `gorm:"uniqueIndex;not null"`
	AvatarURL      string
	PasswordDigest string `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Question struct {
	ID      uint   `gorm:"primaryKey"`
	Text    string `gorm:"not null"`
	A       string `gorm:"not null"`
	B       string `gorm:"not null"`
	C       string `gorm:"not null"`
	D       string `gorm:"not null"`
	Correct string `gorm:"not null"` // "A".."D"
}

func (q Question) toQuiz() quiz.Question {
	return quiz.Question{
		ID:      q.ID,
		Text:    q.Text,
		A:       q.A,
		B:       q.B,
		C:       q.C,
		D:       q.D,
		Correct: quiz.Choice(q.Correct),
	}
}

type Users interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id uint) (*User, error)
}

type Questions interface {
	RandomQuestions(ctx context.Context, n int) ([]quiz.Question, error)
}

type Store interface {
	Users
	Questions
}

// DB is the Postgres-backed store.
type DB struct {
	db *gorm.DB
}

func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&User{}, &Question{}); err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) CreateUser(ctx context.Context, u *User) error {
	var existing User
	err := d.db.WithContext(ctx).Where("email = ?", u.Email).First(&existing).Error
	if err == nil {
		return ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return d.db.WithContext(ctx).Create(u).Error
}

func (d *DB) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := d.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) UserByID(ctx context.Context, id uint) (*User, error) {
	var u User
	err := d.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) RandomQuestions(ctx context.Context, n int) ([]quiz.Question, error) {
	var rows []Question
	if err := d.db.WithContext(ctx).Order("RANDOM()").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]quiz.Question, 0, len(rows))
	for _, q := range rows {
		out = append(out, q.toQuiz())
	}
	return out, nil
}

// SeedQuestions loads the built-in bank into an empty questions table so a
// fresh database can serve games immediately.
func (d *DB) SeedQuestions(ctx context.Context) error {
	var count int64
	if err := d.db.WithContext(ctx).Model(&Question{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	bank := defaultBank()
	return d.db.WithContext(ctx).Create(&bank).Error
}
