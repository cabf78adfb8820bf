package household

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/pantryhub/go-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accessor serves the shared household dataset with each member's private
// overlay merged in. Reads never create overlay rows; a member who has no
// preference on a recipe gets defaults. Writes upsert the overlay.
type Accessor struct {
	db     *bun.DB
	logger auth.Logger
}

type AccessorOption func(*Accessor)

func WithAccessorLogger(logger auth.Logger) AccessorOption {
	return func(a *Accessor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAccessor(db *bun.DB, opts ...AccessorOption) *Accessor {
	accessor := &Accessor{
		db:     db,
		logger: auth.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(accessor)
	}

	return accessor
}

// GetRecipe returns the shared recipe merged with the member's overlay.
func (a *Accessor) GetRecipe(ctx context.Context, userID, recipeID uuid.UUID) (*RecipeView, error) {
	recipe := &Recipe{}
	err := a.db.NewSelect().
		Model(recipe).
		Where("?TableAlias.id = ?", recipeID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, goerrors.New("recipe not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "recipe lookup failed")
	}

	view := &RecipeView{Recipe: recipe}

	pref := &Preference{}
	err = a.db.NewSelect().
		Model(pref).
		Where("?TableAlias.user_id = ? AND ?TableAlias.recipe_id = ?", userID, recipeID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return view, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "preference lookup failed")
	}

	view.IsFavorite = pref.IsFavorite
	view.Notes = pref.Notes
	view.Rating = pref.Rating
	view.TimesCooked = pref.TimesCooked
	view.LastCookedAt = pref.LastCookedAt

	return view, nil
}

// ListRecipes returns every shared recipe with the member's overlays merged
// in one pass.
func (a *Accessor) ListRecipes(ctx context.Context, userID uuid.UUID) ([]*RecipeView, error) {
	var recipes []*Recipe
	err := a.db.NewSelect().
		Model(&recipes).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "recipe list failed")
	}

	var prefs []*Preference
	err = a.db.NewSelect().
		Model(&prefs).
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "preference list failed")
	}

	byRecipe := make(map[uuid.UUID]*Preference, len(prefs))
	for _, pref := range prefs {
		byRecipe[pref.RecipeID] = pref
	}

	views := make([]*RecipeView, len(recipes))
	for i, recipe := range recipes {
		view := &RecipeView{Recipe: recipe}
		if pref, ok := byRecipe[recipe.ID]; ok {
			view.IsFavorite = pref.IsFavorite
			view.Notes = pref.Notes
			view.Rating = pref.Rating
			view.TimesCooked = pref.TimesCooked
			view.LastCookedAt = pref.LastCookedAt
		}
		views[i] = view
	}

	return views, nil
}

// CreateRecipe adds a shared recipe visible to every member.
func (a *Accessor) CreateRecipe(ctx context.Context, recipe *Recipe) (*Recipe, error) {
	if recipe.ID == uuid.Nil {
		recipe.ID = uuid.New()
	}

	if _, err := a.db.NewInsert().Model(recipe).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create recipe")
	}

	return recipe, nil
}

// ToggleFavorite flips the member's favorite flag, creating the overlay row
// on first touch.
func (a *Accessor) ToggleFavorite(ctx context.Context, userID, recipeID uuid.UUID) (bool, error) {
	if err := a.ensureRecipe(ctx, recipeID); err != nil {
		return false, err
	}

	now := time.Now()
	pref := &Preference{
		ID:         uuid.New(),
		UserID:     userID,
		RecipeID:   recipeID,
		IsFavorite: true,
		UpdatedAt:  &now,
	}

	// Flip and read back in one transaction so the returned flag cannot
	// reflect a concurrent toggle.
	stored := &Preference{}
	err := a.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(pref).
			On("CONFLICT (user_id, recipe_id) DO UPDATE").
			Set("is_favorite = NOT pref.is_favorite").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}

		return tx.NewSelect().
			Model(stored).
			Where("?TableAlias.user_id = ? AND ?TableAlias.recipe_id = ?", userID, recipeID).
			Limit(1).
			Scan(ctx)
	})
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to toggle favorite")
	}

	return stored.IsFavorite, nil
}

// SetNotes stores the member's private notes and rating for a recipe.
func (a *Accessor) SetNotes(ctx context.Context, userID, recipeID uuid.UUID, notes string, rating int) error {
	if err := a.ensureRecipe(ctx, recipeID); err != nil {
		return err
	}

	now := time.Now()
	pref := &Preference{
		ID:        uuid.New(),
		UserID:    userID,
		RecipeID:  recipeID,
		Notes:     notes,
		Rating:    rating,
		UpdatedAt: &now,
	}

	_, err := a.db.NewInsert().
		Model(pref).
		On("CONFLICT (user_id, recipe_id) DO UPDATE").
		Set("notes = EXCLUDED.notes").
		Set("rating = EXCLUDED.rating").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save notes")
	}

	return nil
}

// MarkCooked bumps the member's cook counter and timestamp.
func (a *Accessor) MarkCooked(ctx context.Context, userID, recipeID uuid.UUID) error {
	if err := a.ensureRecipe(ctx, recipeID); err != nil {
		return err
	}

	now := time.Now()
	pref := &Preference{
		ID:           uuid.New(),
		UserID:       userID,
		RecipeID:     recipeID,
		TimesCooked:  1,
		LastCookedAt: &now,
		UpdatedAt:    &now,
	}

	_, err := a.db.NewInsert().
		Model(pref).
		On("CONFLICT (user_id, recipe_id) DO UPDATE").
		Set("times_cooked = pref.times_cooked + 1").
		Set("last_cooked_at = EXCLUDED.last_cooked_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark cooked")
	}

	return nil
}

// DeleteRecipe removes a shared recipe and every member's overlay on it, in
// one transaction.
func (a *Accessor) DeleteRecipe(ctx context.Context, recipeID uuid.UUID) error {
	err := a.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*Preference)(nil)).
			Where("recipe_id = ?", recipeID).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*Recipe)(nil)).
			Where("id = ?", recipeID).
			Exec(ctx)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return goerrors.New("recipe not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "recipe delete failed")
	}

	a.logger.Info("recipe %s deleted", recipeID)

	return nil
}

// DeleteMemberOverlays removes every overlay a member owns. Shaped as a
// cascade for account deletion; it runs in the caller's transaction.
func (a *Accessor) DeleteMemberOverlays(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*Preference)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete overlays")
	}
	return nil
}

func (a *Accessor) ensureRecipe(ctx context.Context, recipeID uuid.UUID) error {
	exists, err := a.db.NewSelect().
		Model((*Recipe)(nil)).
		Where("?TableAlias.id = ?", recipeID).
		Exists(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "recipe lookup failed")
	}
	if !exists {
		return goerrors.New("recipe not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}
	return nil
}
