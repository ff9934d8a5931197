package domain

// ChunkType classifies a chunk of a parsed document.
type ChunkType string

const (
	ChunkTypeText        ChunkType = "text"
	ChunkTypeTable       ChunkType = "table"
	ChunkTypeFigure      ChunkType = "figure"
	ChunkTypeMarginalia  ChunkType = "marginalia"
	ChunkTypeLogo        ChunkType = "logo"
	ChunkTypeScanCode    ChunkType = "scan_code"
	ChunkTypeForm        ChunkType = "form"
	ChunkTypeAttestation ChunkType = "attestation"
	ChunkTypeCard        ChunkType = "card"
)

// KnownChunkTypes lists the chunk types the API documents. Other values are kept as-is.
var KnownChunkTypes = []ChunkType{
	ChunkTypeText, ChunkTypeTable, ChunkTypeFigure, ChunkTypeMarginalia,
	ChunkTypeLogo, ChunkTypeScanCode, ChunkTypeForm, ChunkTypeAttestation, ChunkTypeCard,
}

// IsKnown reports whether t is one of KnownChunkTypes.
func (t ChunkType) IsKnown() bool {
	for _, k := range KnownChunkTypes {
		if t == k {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of a gateway job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ValidJobStatuses is used to validate list filters.
var ValidJobStatuses = map[JobStatus]bool{
	JobStatusQueued:     true,
	JobStatusProcessing: true,
	JobStatusCompleted:  true,
	JobStatusFailed:     true,
}

// SplitMode controls how the API groups chunks into splits.
const (
	SplitNone = ""
	SplitPage = "page"
)

// FileType represents a document type the gateway accepts.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeJPG  FileType = "jpg"
	FileTypePNG  FileType = "png"
	FileTypeTIFF FileType = "tiff"
	FileTypeDOCX FileType = "docx"
	FileTypePPTX FileType = "pptx"
	FileTypeXLSX FileType = "xlsx"
)

// AllowedFileTypes maps FileType to its MIME content type.
var AllowedFileTypes = map[FileType]string{
	FileTypePDF:  "application/pdf",
	FileTypeJPG:  "image/jpeg",
	FileTypePNG:  "image/png",
	FileTypeTIFF: "image/tiff",
	FileTypeDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FileTypePPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	FileTypeXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
	"tif":  FileTypeTIFF,
	"tiff": FileTypeTIFF,
	"docx": FileTypeDOCX,
	"pptx": FileTypePPTX,
	"xlsx": FileTypeXLSX,
}

// sniffedContentTypes maps what http.DetectContentType reports for each
// FileType. Office documents are zip containers.
var sniffedContentTypes = map[FileType][]string{
	FileTypePDF:  {"application/pdf"},
	FileTypeJPG:  {"image/jpeg"},
	FileTypePNG:  {"image/png"},
	FileTypeTIFF: {"image/tiff", "application/octet-stream"},
	FileTypeDOCX: {"application/zip"},
	FileTypePPTX: {"application/zip"},
	FileTypeXLSX: {"application/zip"},
}

// MatchesSniffedType reports whether a detected content type is plausible for ft.
func (ft FileType) MatchesSniffedType(detected string) bool {
	for _, ct := range sniffedContentTypes[ft] {
		if ct == detected {
			return true
		}
	}
	return false
}

// RemoteJobStatus is the state of an asynchronous parse job on the API side.
type RemoteJobStatus string

const (
	RemoteJobPending    RemoteJobStatus = "pending"
	RemoteJobProcessing RemoteJobStatus = "processing"
	RemoteJobCompleted  RemoteJobStatus = "completed"
	RemoteJobFailed     RemoteJobStatus = "failed"
	RemoteJobCancelled  RemoteJobStatus = "cancelled"
)

// IsTerminal reports whether the remote job will not change state again.
func (s RemoteJobStatus) IsTerminal() bool {
	return s == RemoteJobCompleted || s == RemoteJobFailed || s == RemoteJobCancelled
}
