package adminapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/phillip-england/cardsuite/internal/cardflow"
	"github.com/phillip-england/cardsuite/internal/schema"
)

// Permissions are the feature flags granted to a client. Staff carry the
// staff and settings subset.
type Permissions struct {
	StaffList          bool `json:"perm_staff_list"`
	StaffAdd           bool `json:"perm_staff_add"`
	StaffEdit          bool `json:"perm_staff_edit"`
	StaffDelete        bool `json:"perm_staff_delete"`
	StaffStatus        bool `json:"perm_staff_status"`
	SettingList        bool `json:"perm_idcard_setting_list"`
	SettingAdd         bool `json:"perm_idcard_setting_add"`
	SettingEdit        bool `json:"perm_idcard_setting_edit"`
	SettingDelete      bool `json:"perm_idcard_setting_delete"`
	SettingStatus      bool `json:"perm_idcard_setting_status"`
	PendingList        bool `json:"perm_idcard_pending_list"`
	VerifiedList       bool `json:"perm_idcard_verified_list"`
	PoolList           bool `json:"perm_idcard_pool_list"`
	ApprovedList       bool `json:"perm_idcard_approved_list"`
	DownloadList       bool `json:"perm_idcard_download_list"`
	CardAdd            bool `json:"perm_idcard_add"`
	CardEdit           bool `json:"perm_idcard_edit"`
	CardDelete         bool `json:"perm_idcard_delete"`
	CardInfo           bool `json:"perm_idcard_info"`
	CardApprove        bool `json:"perm_idcard_approve"`
	CardVerify         bool `json:"perm_idcard_verify"`
	CardRetrieve       bool `json:"perm_idcard_retrieve"`
	CardBulkUpload     bool `json:"perm_idcard_bulk_upload"`
	CardBulkDownload   bool `json:"perm_idcard_bulk_download"`
	CardDeleteFromPool bool `json:"perm_idcard_delete_from_pool"`
	CardReuploadImage  bool `json:"perm_reupload_idcard_image"`
}

// PermissionGroup is one fieldset of permission checkboxes.
type PermissionGroup struct {
	Title string
	Items []PermissionItem
}

type PermissionItem struct {
	Key     string
	Label   string
	Checked bool
}

// Groups lays the flags out the way the client drawer shows them. With
// staffOnly set, only the subset that applies to staff is returned.
func (p Permissions) Groups(staffOnly bool) []PermissionGroup {
	groups := []PermissionGroup{
		{Title: "Staff", Items: []PermissionItem{
			{"perm_staff_list", "List", p.StaffList},
			{"perm_staff_add", "Add", p.StaffAdd},
			{"perm_staff_edit", "Edit", p.StaffEdit},
			{"perm_staff_delete", "Delete", p.StaffDelete},
			{"perm_staff_status", "Status", p.StaffStatus},
		}},
		{Title: "ID Card Settings", Items: []PermissionItem{
			{"perm_idcard_setting_list", "List", p.SettingList},
			{"perm_idcard_setting_add", "Add", p.SettingAdd},
			{"perm_idcard_setting_edit", "Edit", p.SettingEdit},
			{"perm_idcard_setting_delete", "Delete", p.SettingDelete},
			{"perm_idcard_setting_status", "Status", p.SettingStatus},
		}},
	}
	if staffOnly {
		return groups
	}
	return append(groups,
		PermissionGroup{Title: "ID Card Lists", Items: []PermissionItem{
			{"perm_idcard_pending_list", "Pending", p.PendingList},
			{"perm_idcard_verified_list", "Verified", p.VerifiedList},
			{"perm_idcard_pool_list", "Pool", p.PoolList},
			{"perm_idcard_approved_list", "Approved", p.ApprovedList},
			{"perm_idcard_download_list", "Download", p.DownloadList},
		}},
		PermissionGroup{Title: "ID Card Actions", Items: []PermissionItem{
			{"perm_idcard_add", "Add", p.CardAdd},
			{"perm_idcard_edit", "Edit", p.CardEdit},
			{"perm_idcard_delete", "Delete", p.CardDelete},
			{"perm_idcard_info", "Info", p.CardInfo},
			{"perm_idcard_approve", "Approve", p.CardApprove},
			{"perm_idcard_verify", "Verify", p.CardVerify},
			{"perm_idcard_retrieve", "Retrieve", p.CardRetrieve},
			{"perm_idcard_bulk_upload", "Bulk Upload", p.CardBulkUpload},
			{"perm_idcard_bulk_download", "Bulk Download", p.CardBulkDownload},
			{"perm_idcard_delete_from_pool", "Delete From Pool", p.CardDeleteFromPool},
			{"perm_reupload_idcard_image", "Reupload Images", p.CardReuploadImage},
		}},
	)
}

// PermissionsFromKeys sets every flag whose JSON key is in keys.
func PermissionsFromKeys(keys map[string]bool) Permissions {
	raw, _ := json.Marshal(keys)
	var p Permissions
	_ = json.Unmarshal(raw, &p)
	return p
}

type Client struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Status    string `json:"status"`
	PhotoURL  string `json:"photo_url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Permissions
}

func (c Client) Active() bool { return strings.EqualFold(c.Status, "active") }

type ClientInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Permissions
}

type Staff struct {
	ID          int64  `json:"id"`
	ClientID    int64  `json:"client_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	Permissions
}

func (s Staff) Active() bool { return strings.EqualFold(s.Status, "active") }

type StaffInput struct {
	ClientID    int64  `json:"client_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
	Permissions
}

type Group struct {
	ID         int64  `json:"id"`
	ClientID   int64  `json:"client_id"`
	Name       string `json:"name"`
	TableCount int    `json:"table_count"`
}

type Table struct {
	ID         int64          `json:"id"`
	GroupID    int64          `json:"group_id"`
	Name       string         `json:"name"`
	Fields     []schema.Field `json:"fields"`
	FieldCount int            `json:"field_count"`
	CardCount  int            `json:"card_count"`
	IsActive   bool           `json:"is_active"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

type TableInput struct {
	Name   string         `json:"name"`
	Fields []schema.Field `json:"fields"`
}

// FieldData maps field names to values. Non-string JSON values are kept
// as their text form.
type FieldData map[string]string

func (f *FieldData) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FieldData, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	*f = out
	return nil
}

type Card struct {
	ID        int64           `json:"id"`
	TableID   int64           `json:"table_id"`
	FieldData FieldData       `json:"field_data"`
	Photo     string          `json:"photo"`
	Status    cardflow.Status `json:"status"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// StatusCounts is the per-status card tally of a table.
type StatusCounts struct {
	Pending  int `json:"pending"`
	Verified int `json:"verified"`
	Pool     int `json:"pool"`
	Approved int `json:"approved"`
	Download int `json:"download"`
	Reprint  int `json:"reprint"`
	Total    int `json:"total"`
}

func (c StatusCounts) For(s cardflow.Status) int {
	switch s {
	case cardflow.Pending:
		return c.Pending
	case cardflow.Verified:
		return c.Verified
	case cardflow.Pool:
		return c.Pool
	case cardflow.Approved:
		return c.Approved
	case cardflow.Download:
		return c.Download
	case cardflow.Reprint:
		return c.Reprint
	default:
		return 0
	}
}

type CardPage struct {
	Cards        []Card       `json:"cards"`
	HasMore      bool         `json:"has_more"`
	TotalCount   int          `json:"total_count"`
	StatusCounts StatusCounts `json:"status_counts"`
	Table        Table        `json:"table"`
}

type CardHit struct {
	ID           int64           `json:"id"`
	DisplayName  string          `json:"display_name"`
	Status       cardflow.Status `json:"status"`
	MatchedField string          `json:"matched_field"`
	MatchedValue string          `json:"matched_value"`
	Photo        string          `json:"photo"`
}

type SearchResult struct {
	Type         string `json:"type"`
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	MatchedField string `json:"matched_field"`
	MatchedValue string `json:"matched_value"`
	URL          string `json:"url"`
	Icon         string `json:"icon"`
	Status       string `json:"status"`
}

type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	ImageURL string `json:"image_url"`
}

type ProfileInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type PasswordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
	Confirm string `json:"confirm_password"`
}

// UploadResult reports a bulk upload or an image reupload. CardsUpdated is
// only set by reuploads.
type UploadResult struct {
	Message       string   `json:"message"`
	CardsCreated  int      `json:"cards_created"`
	CardsUpdated  int      `json:"cards_updated"`
	PhotosMatched int      `json:"photos_matched"`
	MatchedFields []string `json:"matched_fields"`
	Errors        []string `json:"errors"`
	ErrorCount    int      `json:"error_count"`
}
