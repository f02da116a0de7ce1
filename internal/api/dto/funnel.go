package dto

import (
	"strings"

	"github.com/hugh/funnel-builder/internal/api/validation"
)

// MaxPageContentBytes bounds the serialized page document.
const MaxPageContentBytes = 512 << 10

type CreateFunnelRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

func (r CreateFunnelRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if msg := validation.ValidateName("Name", r.Name); msg != "" {
		errors["name"] = msg
	}
	if len(r.Slug) > validation.MaxSlugLength {
		errors["slug"] = "Slug must be at most 64 characters"
	}
	return errors
}

type UpdateFunnelRequest struct {
	Name      *string `json:"name,omitempty"`
	Slug      *string `json:"slug,omitempty"`
	Published *bool   `json:"published,omitempty"`
}

func (r UpdateFunnelRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil {
		if msg := validation.ValidateName("Name", *r.Name); msg != "" {
			errors["name"] = msg
		}
	}
	if r.Slug != nil {
		switch {
		case strings.TrimSpace(*r.Slug) == "":
			errors["slug"] = "Slug cannot be empty"
		case len(*r.Slug) > validation.MaxSlugLength:
			errors["slug"] = "Slug must be at most 64 characters"
		}
	}
	if r.Name == nil && r.Slug == nil && r.Published == nil {
		errors["body"] = "Nothing to update"
	}
	return errors
}

type PublishRequest struct {
	Published *bool `json:"published"`
}

func (r PublishRequest) Validate() map[string]string {
	if r.Published == nil {
		return map[string]string{"published": "Published is required"}
	}
	return nil
}

type CreatePageRequest struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

func (r CreatePageRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if msg := validation.ValidateName("Name", r.Name); msg != "" {
		errors["name"] = msg
	}
	if r.Path != "" && !validPath(r.Path) {
		errors["path"] = "Path must be lowercase words separated by hyphens or slashes"
	}
	if len(r.Content) > MaxPageContentBytes {
		errors["content"] = "Content is too large"
	}
	return errors
}

type UpdatePageRequest struct {
	Name    *string `json:"name,omitempty"`
	Path    *string `json:"path,omitempty"`
	Content *string `json:"content,omitempty"`
}

func (r UpdatePageRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil {
		if msg := validation.ValidateName("Name", *r.Name); msg != "" {
			errors["name"] = msg
		}
	}
	if r.Path != nil && !validPath(*r.Path) {
		errors["path"] = "Path must be lowercase words separated by hyphens or slashes"
	}
	if r.Content != nil && len(*r.Content) > MaxPageContentBytes {
		errors["content"] = "Content is too large"
	}
	return errors
}

type ReorderPagesRequest struct {
	PageIDs []int64 `json:"page_ids"`
}

func (r ReorderPagesRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if len(r.PageIDs) == 0 {
		errors["page_ids"] = "Page order is required"
	}
	return errors
}

// validPath accepts paths with or without the leading slash.
func validPath(p string) bool {
	return validation.IsValidPagePath("/" + strings.TrimLeft(strings.TrimSpace(p), "/"))
}
