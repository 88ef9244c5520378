package models

import "time"

type User struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	IsActive     bool       `db:"is_active"`
	IsStaff      bool       `db:"is_staff"`
	IsSuperuser  bool       `db:"is_superuser"`
	DateJoined   time.Time  `db:"date_joined"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// FullName is first and last name separated by a space.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Subject struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type Lecturer struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

type MediaAsset struct {
	ID          string    `db:"id"`
	OwnerUserID *string   `db:"owner_user_id"`
	Bucket      string    `db:"bucket"`
	StorageKey  string    `db:"storage_key"`
	Filename    *string   `db:"filename"`
	Kind        string    `db:"kind"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	Sha256      string    `db:"sha256"`
	CreatedAt   time.Time `db:"created_at"`
}

type Video struct {
	ID               string    `db:"id"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	ThumbnailMediaID *string   `db:"thumbnail_media_id"`
	UploadMediaID    string    `db:"upload_media_id"`
	SubjectID        string    `db:"subject_id"`
	OwnerID          string    `db:"owner_id"`
	ViewCount        int64     `db:"view_count"`
	CommentCount     int64     `db:"comment_count"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// VideoListing is a video joined with the names shown next to it in lists.
type VideoListing struct {
	Video
	SubjectName string `db:"subject_name"`
	OwnerEmail  string `db:"owner_email"`
}

type Comment struct {
	ID            string    `db:"id"`
	Title         string    `db:"title"`
	Text          string    `db:"text"`
	Image1MediaID *string   `db:"image1_media_id"`
	Image2MediaID *string   `db:"image2_media_id"`
	Image3MediaID *string   `db:"image3_media_id"`
	VideoMediaID  *string   `db:"video_media_id"`
	OwnerID       *string   `db:"owner_id"`
	VideoID       string    `db:"video_id"`
	LecturerID    string    `db:"lecturer_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// MediaIDs lists every attachment referenced by the comment.
func (c Comment) MediaIDs() []string {
	ids := []string{}
	for _, id := range []*string{c.Image1MediaID, c.Image2MediaID, c.Image3MediaID, c.VideoMediaID} {
		if id != nil && *id != "" {
			ids = append(ids, *id)
		}
	}
	return ids
}

type CommentListing struct {
	Comment
	LecturerName string  `db:"lecturer_name"`
	OwnerEmail   *string `db:"owner_email"`
}

type ServerMetricSample struct {
	ID                string    `db:"id"`
	CapturedAt        time.Time `db:"captured_at"`
	UsersTotal        int64     `db:"users_total"`
	UsersPending      int64     `db:"users_pending"`
	VideosTotal       int64     `db:"videos_total"`
	CommentsTotal     int64     `db:"comments_total"`
	ViewsTotal        int64     `db:"views_total"`
	ProcessRSSBytes   int64     `db:"process_rss_bytes"`
	SystemMemoryTotal int64     `db:"system_memory_total_bytes"`
	SystemMemoryUsed  int64     `db:"system_memory_used_bytes"`
	DiskTotalBytes    int64     `db:"disk_total_bytes"`
	DiskUsedBytes     int64     `db:"disk_used_bytes"`
	ProcessCpuLoad    float64   `db:"process_cpu_load"`
	SystemCpuLoad     float64   `db:"system_cpu_load"`
}
