package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"

	"directory/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slug.IsSlug(fl.Field().String())
	})
	_ = v.RegisterValidation("jsonobject", func(fl validator.FieldLevel) bool {
		raw, ok := fl.Field().Interface().(json.RawMessage)
		if !ok || len(raw) == 0 {
			return true
		}
		var m map[string]any
		return json.Unmarshal(raw, &m) == nil
	})
	return v
}

// validateStruct runs the tag rules and folds the failures into one ErrInvalid.
func validateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalid)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrInvalid)
}

type ImageInput struct {
	URL       string  `json:"url" validate:"required,url,max=1024"`
	Alt       *string `json:"alt" validate:"omitempty,max=255"`
	IsPrimary bool    `json:"is_primary"`
}

type FAQInput struct {
	Question string `json:"question" validate:"required,max=512"`
	Answer   string `json:"answer" validate:"required"`
}

type PolicyInput struct {
	Kind  string `json:"kind" validate:"required,max=64"`
	Title string `json:"title" validate:"required,max=255"`
	Body  string `json:"body" validate:"required"`
}

// ListingInput is the create body. Update uses the same shape with every
// field optional.
type ListingInput struct {
	Name          string          `json:"name" validate:"required,max=255"`
	Slug          *string         `json:"slug" validate:"omitempty,max=191,slug"`
	Description   *string         `json:"description" validate:"omitempty,max=20000"`
	Area          *string         `json:"area" validate:"omitempty,max=128"`
	City          *string         `json:"city" validate:"omitempty,max=128"`
	Address       *string         `json:"address" validate:"omitempty,max=512"`
	Lat           *float64        `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon           *float64        `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	Phone         *string         `json:"phone" validate:"omitempty,max=64"`
	Website       *string         `json:"website" validate:"omitempty,url,max=512"`
	Email         *string         `json:"email" validate:"omitempty,email,max=255"`
	PriceRange    *string         `json:"price_range" validate:"omitempty,oneof=$ $$ $$$ $$$$"`
	Rating        *float64        `json:"rating" validate:"omitempty,gte=0,lte=5"`
	ReviewCount   *int            `json:"review_count" validate:"omitempty,gte=0"`
	GooglePlaceID *string         `json:"google_place_id" validate:"omitempty,max=255"`
	Attributes    json.RawMessage `json:"attributes" validate:"jsonobject"`
	Active        *bool           `json:"active"`
	Images        []ImageInput    `json:"images" validate:"omitempty,max=50,dive"`
	FAQs          []FAQInput      `json:"faqs" validate:"omitempty,max=100,dive"`
	Policies      []PolicyInput   `json:"policies" validate:"omitempty,max=50,dive"`
}

type ListingUpdate struct {
	Name          *string         `json:"name" validate:"omitempty,max=255"`
	Slug          *string         `json:"slug" validate:"omitempty,max=191,slug"`
	Description   *string         `json:"description" validate:"omitempty,max=20000"`
	Area          *string         `json:"area" validate:"omitempty,max=128"`
	City          *string         `json:"city" validate:"omitempty,max=128"`
	Address       *string         `json:"address" validate:"omitempty,max=512"`
	Lat           *float64        `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon           *float64        `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	Phone         *string         `json:"phone" validate:"omitempty,max=64"`
	Website       *string         `json:"website" validate:"omitempty,url,max=512"`
	Email         *string         `json:"email" validate:"omitempty,email,max=255"`
	PriceRange    *string         `json:"price_range" validate:"omitempty,oneof=$ $$ $$$ $$$$"`
	Rating        *float64        `json:"rating" validate:"omitempty,gte=0,lte=5"`
	ReviewCount   *int            `json:"review_count" validate:"omitempty,gte=0"`
	GooglePlaceID *string         `json:"google_place_id" validate:"omitempty,max=255"`
	Attributes    json.RawMessage `json:"attributes" validate:"jsonobject"`
}

func (u ListingUpdate) patch() domain.ListingPatch {
	return domain.ListingPatch{
		Slug: u.Slug, Name: u.Name, Description: u.Description, Area: u.Area, City: u.City,
		Address: u.Address, Lat: u.Lat, Lon: u.Lon, Phone: u.Phone, Website: u.Website,
		Email: u.Email, PriceRange: u.PriceRange, Rating: u.Rating, ReviewCount: u.ReviewCount,
		GooglePlaceID: u.GooglePlaceID, Attributes: u.Attributes,
	}
}
