package dto

import "strings"

type SaveCircleRequest struct {
	APIToken    string `json:"api_token"`
	CommunityID int64  `json:"community_id"`
}

func (r SaveCircleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if strings.TrimSpace(r.APIToken) == "" {
		errors["api_token"] = "API token is required"
	}
	if r.CommunityID <= 0 {
		errors["community_id"] = "Community ID must be positive"
	}
	return errors
}
