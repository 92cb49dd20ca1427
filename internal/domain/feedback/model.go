package feedback

import (
	"errors"
	"slices"
	"strings"
	"time"

	"glamour/internal/domain/validation"
)

// DefaultAnonymousName is shown for anonymous reviews submitted without a name.
const DefaultAnonymousName = "Anonymous"

// MaxPhotos caps the photo URLs attached to one review.
const MaxPhotos = 5

// Domain errors
var (
	ErrRatingRequired   = errors.New("Rating must be between 1 and 5")
	ErrSubRatingInvalid = errors.New("Venue, sound, staff and organization ratings must be between 1 and 5")
	ErrTooManyPhotos    = errors.New("Maximum 5 photos allowed")
	ErrReplyRequired    = errors.New("Reply text is required")
	ErrNotFound         = errors.New("review not found")
)

// Ratings holds the overall score and the optional category scores.
// Zero means the category was not rated.
type Ratings struct {
	Overall      int `json:"overall" validate:"required,gte=1,lte=5"`
	Venue        int `json:"venue,omitempty" validate:"omitempty,gte=1,lte=5"`
	Sound        int `json:"sound,omitempty" validate:"omitempty,gte=1,lte=5"`
	Staff        int `json:"staff,omitempty" validate:"omitempty,gte=1,lte=5"`
	Organization int `json:"organization,omitempty" validate:"omitempty,gte=1,lte=5"`
}

// Demographics are the optional reviewer details used by event statistics.
type Demographics struct {
	AgeGroup         string `json:"ageGroup,omitempty"`
	FirstTimeVisitor bool   `json:"firstTimeVisitor"`
}

// Response is an organizer's reply to a review.
type Response struct {
	Text        string    `json:"text"`
	RespondedBy string    `json:"respondedBy,omitempty"`
	RespondedAt time.Time `json:"respondedAt,omitempty"`
}

// Reviewer is the populated user reference on a review.
type Reviewer struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Review is one feedback entry as returned by the API.
type Review struct {
	ID             string        `json:"_id"`
	EventID        string        `json:"eventId"`
	User           *Reviewer     `json:"userId,omitempty"`
	Ratings        Ratings       `json:"ratings"`
	Comments       string        `json:"comments"`
	Recommendation bool          `json:"recommendation"`
	Photos         []string      `json:"photos"`
	IsAnonymous    bool          `json:"isAnonymous"`
	AnonymousName  string        `json:"anonymousName,omitempty"`
	Demographics   *Demographics `json:"demographics,omitempty"`
	IsPublic       bool          `json:"isPublic"`
	Response       *Response     `json:"response,omitempty"`
	IsEdited       bool          `json:"isEdited,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Clone returns a copy that shares no slices or pointers with r.
func (r Review) Clone() Review {
	out := r
	out.Photos = slices.Clone(r.Photos)
	if r.User != nil {
		u := *r.User
		out.User = &u
	}
	if r.Demographics != nil {
		d := *r.Demographics
		out.Demographics = &d
	}
	if r.Response != nil {
		resp := *r.Response
		out.Response = &resp
	}
	return out
}

// DisplayName returns the name to show next to the review.
func (r Review) DisplayName() string {
	if r.IsAnonymous {
		if r.AnonymousName != "" {
			return r.AnonymousName
		}
		return DefaultAnonymousName
	}
	if r.User != nil && r.User.Name != "" {
		return r.User.Name
	}
	return DefaultAnonymousName
}

// Input carries a new review. It is sent to the API as-is after Normalize.
type Input struct {
	Ratings        Ratings       `json:"ratings"`
	Comments       string        `json:"comments"`
	Recommendation bool          `json:"recommendation"`
	Photos         []string      `json:"photos"`
	IsAnonymous    bool          `json:"isAnonymous"`
	AnonymousName  string        `json:"anonymousName,omitempty"`
	Demographics   *Demographics `json:"demographics,omitempty"`
	IsPublic       bool          `json:"isPublic"`
}

// Normalize fills the defaults the API expects: a non-nil photo list, and an
// anonymous name only when the review is anonymous.
func (in Input) Normalize() Input {
	if in.Photos == nil {
		in.Photos = []string{}
	}
	in.AnonymousName = strings.TrimSpace(in.AnonymousName)
	if !in.IsAnonymous {
		in.AnonymousName = ""
	} else if in.AnonymousName == "" {
		in.AnonymousName = DefaultAnonymousName
	}
	return in
}

// Validate checks the rating ranges and the photo count.
func (in Input) Validate() error {
	if err := checkRatings(in.Ratings); err != nil {
		return err
	}
	if len(in.Photos) > MaxPhotos {
		return ErrTooManyPhotos
	}
	return nil
}

// Update carries an edit to an existing review. Ratings are optional; a
// zero overall rating leaves the stored ratings unchanged.
type Update struct {
	Ratings        *Ratings `json:"ratings,omitempty"`
	Comments       string   `json:"comments"`
	Recommendation bool     `json:"recommendation"`
	Photos         []string `json:"photos"`
	IsPublic       bool     `json:"isPublic"`
}

// Normalize drops an unset ratings block and fills a non-nil photo list.
func (u Update) Normalize() Update {
	if u.Ratings != nil && *u.Ratings == (Ratings{}) {
		u.Ratings = nil
	}
	if u.Photos == nil {
		u.Photos = []string{}
	}
	return u
}

// Validate checks any supplied ratings and the photo count.
func (u Update) Validate() error {
	if u.Ratings != nil && *u.Ratings != (Ratings{}) {
		if err := checkRatings(*u.Ratings); err != nil {
			return err
		}
	}
	if len(u.Photos) > MaxPhotos {
		return ErrTooManyPhotos
	}
	return nil
}

// ValidateReply requires non-blank reply text.
func ValidateReply(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrReplyRequired
	}
	return nil
}

func checkRatings(r Ratings) error {
	p, err := validation.Check(r)
	if err != nil {
		return err
	}
	for _, f := range append(p.Missing, p.Invalid...) {
		if f == "overall" {
			return ErrRatingRequired
		}
	}
	if !p.OK() {
		return ErrSubRatingInvalid
	}
	return nil
}
