package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeVideo = "video/"
	MimeImage = "image/"
	MimeJPEG  = "image/jpeg"
	MimePNG   = "image/png"
	MimeWEBP  = "image/webp"
)

const (
	ProofDir       = "payment_proofs"
	LessonVideoDir = "lesson_videos"
)

var (
	AllowedVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}
	AllowedProofTypes      = []string{MimeJPEG, MimePNG, MimeWEBP}
	AllowedProofExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
)
