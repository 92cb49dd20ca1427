package event

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"glamour/internal/domain/validation"
)

// Category constants offered by the event creation form.
const (
	CategoryConcert    = "Concert"
	CategorySeminar    = "Seminar"
	CategoryWedding    = "Wedding"
	CategoryConference = "Conference"
	CategoryOther      = "Other"
)

// Categories lists valid categories in display order.
var Categories = []string{CategoryConcert, CategorySeminar, CategoryWedding, CategoryConference, CategoryOther}

// MaxBannerBytes caps banner uploads.
const MaxBannerBytes = 5 << 20

// Domain errors
var (
	ErrFieldsRequired  = errors.New("Title, description, date, location and category are required")
	ErrInvalidCategory = errors.New("Category must be one of: Concert, Seminar, Wedding, Conference, Other")
	ErrBannerTooLarge  = errors.New("Banner image must be 5 MB or smaller")
	ErrBannerNotImage  = errors.New("Banner must be an image")
	ErrStatsFailed     = errors.New("Failed to fetch event statistics")
)

// Analytics is the API's rating aggregate for one event.
type Analytics struct {
	AverageRating            float64 `json:"averageRating"`
	TotalReviews             int     `json:"totalReviews"`
	RecommendationPercentage float64 `json:"recommendationPercentage"`
}

// Organizer is the populated createdBy reference.
type Organizer struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Event is read-only after fetch; only the API mutates it.
type Event struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	Location    string     `json:"location"`
	Category    string     `json:"category"`
	BannerURL   string     `json:"banner"`
	CreatedBy   *Organizer `json:"createdBy,omitempty"`
	Analytics   *Analytics `json:"analytics,omitempty"`
}

// IsPast reports whether the event date is before now.
func (e Event) IsPast(now time.Time) bool {
	return !e.Date.IsZero() && e.Date.Before(now)
}

// Banner is an uploaded image for the multipart create/update request.
type Banner struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Input carries the event creation/update form.
type Input struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Date        string  `json:"date" validate:"required"`
	Location    string  `json:"location" validate:"required"`
	Category    string  `json:"category" validate:"required"`
	Banner      *Banner `json:"-"`
}

// Validate checks required fields, the category and the banner.
func (in Input) Validate() error {
	p, err := validation.Check(in)
	if err != nil {
		return err
	}
	if len(p.Missing) > 0 {
		return ErrFieldsRequired
	}
	if !IsCategory(in.Category) {
		return ErrInvalidCategory
	}
	if in.Banner != nil {
		if len(in.Banner.Data) > MaxBannerBytes {
			return ErrBannerTooLarge
		}
		ct := in.Banner.ContentType
		if ct == "" {
			ct = http.DetectContentType(in.Banner.Data)
		}
		if !strings.HasPrefix(ct, "image/") {
			return ErrBannerNotImage
		}
	}
	return nil
}

// Fields returns the text parts of the multipart body in form order.
func (in Input) Fields() [][2]string {
	return [][2]string{
		{"title", in.Title},
		{"description", in.Description},
		{"date", in.Date},
		{"location", in.Location},
		{"category", in.Category},
	}
}

// IsCategory reports whether c is a known category.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Filter narrows list queries. Zero values are omitted from the query string.
type Filter struct {
	Status   string
	Category string
	Page     int
	Limit    int
}

// Query encodes the filter as URL query parameters.
func (f Filter) Query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Pagination is whatever paging metadata the API returns; it is stored, not interpreted.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// HasNext reports whether another page exists.
func (p *Pagination) HasNext() bool {
	return p != nil && p.Page < p.TotalPages
}

// RatingBucket is one bar of the ratings distribution.
type RatingBucket struct {
	Rating     int     `json:"rating"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AverageRating is the /average-rating payload.
type AverageRating struct {
	AverageRating            float64 `json:"averageRating"`
	TotalReviews             int     `json:"totalReviews"`
	RecommendationPercentage float64 `json:"recommendationPercentage"`
}

// Stats combines the two statistics endpoints.
type Stats struct {
	Distribution []RatingBucket
	Average      AverageRating
}

// MonthStats is one month of the admin dashboard comparison.
type MonthStats struct {
	AverageRating            float64 `json:"averageRating"`
	TotalReviews             int     `json:"totalReviews"`
	RecommendationPercentage float64 `json:"recommendationPercentage"`
}

// Improvements are month-over-month deltas in percent.
type Improvements struct {
	RatingImprovement         float64 `json:"ratingImprovement"`
	ReviewsImprovement        float64 `json:"reviewsImprovement"`
	RecommendationImprovement float64 `json:"recommendationImprovement"`
}

// Dashboard is the /admin/data payload.
type Dashboard struct {
	TotalUsers          int          `json:"totalUsers"`
	TotalEvents         int          `json:"totalEvents"`
	UpcomingEventsCount int          `json:"upcomingEventsCount"`
	CurrentMonth        MonthStats   `json:"currentMonth"`
	PreviousMonth       MonthStats   `json:"previousMonth"`
	UpcomingEvents      []Event      `json:"upcomingEvents"`
	PastEvents          []Event      `json:"pastEvents"`
	Improvements        Improvements `json:"improvements"`
}
