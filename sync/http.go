package sync

import "time"

// HTTPRequestTimeout is the default timeout for every call to the service API.
const HTTPRequestTimeout = 10 * time.Second

// ExportDownloadTimeout bounds the download of a finished export archive.
const ExportDownloadTimeout = 5 * time.Minute
