package household

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Recipe is a shared household record. Every member sees the same row;
// personal state lives in overlays, never here.
type Recipe struct {
	bun.BaseModel `bun:"table:recipes,alias:rcp"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title        string     `bun:"title,notnull" json:"title,omitempty"`
	Description  string     `bun:"description" json:"description,omitempty"`
	Instructions string     `bun:"instructions" json:"instructions,omitempty"`
	Servings     int        `bun:"servings" json:"servings,omitempty"`
	PrepMinutes  int        `bun:"prep_minutes" json:"prep_minutes,omitempty"`
	CookMinutes  int        `bun:"cook_minutes" json:"cook_minutes,omitempty"`
	CreatedBy    uuid.UUID  `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Preference is one member's private overlay on a shared recipe. At most one
// row exists per (user, recipe) pair.
type Preference struct {
	bun.BaseModel `bun:"table:user_recipe_preferences,alias:pref"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID       uuid.UUID  `bun:"user_id,notnull,type:uuid,unique:user_recipe" json:"user_id,omitempty"`
	RecipeID     uuid.UUID  `bun:"recipe_id,notnull,type:uuid,unique:user_recipe" json:"recipe_id,omitempty"`
	IsFavorite   bool       `bun:"is_favorite,notnull,default:false" json:"is_favorite,omitempty"`
	Notes        string     `bun:"notes" json:"notes,omitempty"`
	Rating       int        `bun:"rating" json:"rating,omitempty"`
	TimesCooked  int        `bun:"times_cooked,notnull,default:0" json:"times_cooked,omitempty"`
	LastCookedAt *time.Time `bun:"last_cooked_at,nullzero" json:"last_cooked_at,omitempty"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RecipeView is a shared recipe merged with the requesting member's overlay.
// Members without an overlay row see zero-value personal fields.
type RecipeView struct {
	Recipe *Recipe `json:"recipe"`

	IsFavorite   bool       `json:"is_favorite"`
	Notes        string     `json:"notes,omitempty"`
	Rating       int        `json:"rating,omitempty"`
	TimesCooked  int        `json:"times_cooked"`
	LastCookedAt *time.Time `json:"last_cooked_at,omitempty"`
}
