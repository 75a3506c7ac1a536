package domain

// Collection names in the document store.
const (
	CollectionDrafts          = "partner_drafts"
	CollectionApprovalQueue   = "approval_queue"
	CollectionDefaultConfig   = "default_config"
	CollectionPartnerAccounts = "partner_accounts"
	CollectionAPIKeys         = "api_keys"
)

// Document ids of the two halves of the default config.
const (
	DefaultProviderDoc = "provider"
	DefaultTasksDoc    = "tasks"
)

// SchemaVersion tags the export artifact shape. Bump only on breaking changes.
const SchemaVersion = 1

type TaskType string

const (
	TaskTypeFocus      TaskType = "focus"
	TaskTypeMeditation TaskType = "meditation"
	TaskTypeBreathing  TaskType = "breathing"
	TaskTypeExercise   TaskType = "exercise"
	TaskTypeReading    TaskType = "reading"
	TaskTypeJournaling TaskType = "journaling"
	TaskTypeLearning   TaskType = "learning"
	TaskTypeOthers     TaskType = "others"
)

var TaskTypes = []TaskType{
	TaskTypeFocus, TaskTypeMeditation, TaskTypeBreathing, TaskTypeExercise,
	TaskTypeReading, TaskTypeJournaling, TaskTypeLearning, TaskTypeOthers,
}

func (t TaskType) Valid() bool {
	for _, v := range TaskTypes {
		if t == v {
			return true
		}
	}
	return false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusDeclined ReviewStatus = "declined"
)

// Provider identifies a partner application.
type Provider struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	Domain                   string `json:"domain"`
	PackageNameAndroid       string `json:"package_name_android,omitempty"`
	PackageNameIOS           string `json:"package_name_ios,omitempty"`
	AppStoreID               string `json:"app_store_id,omitempty"`
	URLScheme                string `json:"url_scheme,omitempty"`
	IconPathLight            string `json:"icon_path_light,omitempty"`
	IconPathDark             string `json:"icon_path_dark,omitempty"`
	IconBackgroundColorLight string `json:"icon_background_color_light,omitempty"`
	IconBackgroundColorDark  string `json:"icon_background_color_dark,omitempty"`
	IconBackgroundImgLight   string `json:"icon_background_img_light,omitempty"`
	IconBackgroundImgDark    string `json:"icon_background_img_dark,omitempty"`
}

// Task is one gating mini-task offered by a provider. ProviderID is a
// back-reference only; ownership is the enclosing bundle.
type Task struct {
	ID          string     `json:"id"`
	ProviderID  string     `json:"provider_id"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description"`
	Type        TaskType   `json:"type"`
	Difficulty  Difficulty `json:"difficulty"`
	Tags        []string   `json:"tags"`
	Platforms   []Platform `json:"platforms"`
}

// ConfigBundle is the unit of editing and submission.
type ConfigBundle struct {
	Provider  Provider `json:"provider"`
	Tasks     []Task   `json:"tasks"`
	UpdatedAt string   `json:"updated_at,omitempty" format:"date-time"`
}

// ReviewEntry is a submitted bundle plus approval metadata. Approved* is set
// iff Status is approved, Declined* iff Status is declined.
type ReviewEntry struct {
	ConfigBundle
	Status      ReviewStatus `json:"status" enum:"pending,approved,declined"`
	SubmittedAt string       `json:"submitted_at" format:"date-time"`
	SubmittedBy string       `json:"submitted_by"`
	ApprovedAt  *string      `json:"approved_at,omitempty" format:"date-time"`
	ApprovedBy  *string      `json:"approved_by,omitempty"`
	DeclinedAt  *string      `json:"declined_at,omitempty" format:"date-time"`
	DeclinedBy  *string      `json:"declined_by,omitempty"`
	Version     int64        `json:"version"`
}

// ReviewQueue is the approval queue partitioned by status.
type ReviewQueue struct {
	Pending  []ReviewEntry `json:"pending"`
	Approved []ReviewEntry `json:"approved"`
	Declined []ReviewEntry `json:"declined"`
}

// ExportArtifact is the merged document fetched by mobile clients.
type ExportArtifact struct {
	SchemaVersion  int        `json:"schema_version"`
	Providers      []Provider `json:"providers"`
	Tasks          []Task     `json:"tasks"`
	GeneratedAt    string     `json:"generated_at" format:"date-time"`
	TotalProviders int        `json:"total_providers"`
	TotalTasks     int        `json:"total_tasks"`
}

type PartnerAccount struct {
	Email      string `json:"email"`
	ProviderID string `json:"provider_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
