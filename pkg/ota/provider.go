package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/logging"
)

// QueryStatus is the status of a QueryImage response.
type QueryStatus uint8

const (
	StatusUpdateAvailable              QueryStatus = 0
	StatusBusy                         QueryStatus = 1
	StatusNotAvailable                 QueryStatus = 2
	StatusDownloadProtocolNotSupported QueryStatus = 3
)

func (s QueryStatus) String() string {
	switch s {
	case StatusUpdateAvailable:
		return "UpdateAvailable"
	case StatusBusy:
		return "Busy"
	case StatusNotAvailable:
		return "NotAvailable"
	case StatusDownloadProtocolNotSupported:
		return "DownloadProtocolNotSupported"
	}
	return fmt.Sprintf("QueryStatus(%d)", uint8(s))
}

// QueryImageRequest describes the running software to a provider.
type QueryImageRequest struct {
	VendorID            uint16
	ProductID           uint16
	SoftwareVersion     uint32
	HardwareVersion     uint16
	Location            string
	RequestorCanConsent bool
	MetadataForProvider []byte
}

// QueryImageResponse is a provider's answer to QueryImage.
type QueryImageResponse struct {
	Status                QueryStatus
	DelayedActionTime     time.Duration
	ImageURI              string
	SoftwareVersion       uint32
	SoftwareVersionString string
	UserConsentNeeded     bool
	MetadataForRequestor  []byte
}

// Provider serves OTA images.
type Provider interface {
	QueryImage(ctx context.Context, req QueryImageRequest) (QueryImageResponse, error)
	Download(ctx context.Context, uri string) (io.ReadCloser, error)
}

// ImageExt is the file extension DirProvider looks for.
const ImageExt = ".ota"

// ErrInvalidURI is returned by DirProvider.Download for URIs outside its
// directory.
var ErrInvalidURI = errors.New("ota: invalid image uri")

// DirProvider serves the images found in a directory. Among the images
// matching the requestor, the highest applicable software version wins.
type DirProvider struct {
	dir string
	log logging.LeveledLogger
}

// NewDirProvider returns a provider for the images in dir.
func NewDirProvider(dir string, lf logging.LoggerFactory) *DirProvider {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &DirProvider{dir: dir, log: lf.NewLogger("ota")}
}

// QueryImage implements Provider.
func (p *DirProvider) QueryImage(ctx context.Context, req QueryImageRequest) (QueryImageResponse, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return QueryImageResponse{}, err
	}
	var best *Header
	var bestName string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return QueryImageResponse{}, err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ImageExt {
			continue
		}
		h, err := p.readHeader(e.Name())
		if err != nil {
			p.log.Warnf("Skipping %s: %v", e.Name(), err)
			continue
		}
		if h.VendorID != req.VendorID || h.ProductID != req.ProductID || !h.Applicable(req.SoftwareVersion) {
			continue
		}
		if best == nil || h.SoftwareVersion > best.SoftwareVersion {
			best, bestName = h, e.Name()
		}
	}
	if best == nil {
		return QueryImageResponse{Status: StatusNotAvailable}, nil
	}
	p.log.Infof("Offering %s (version %d) to 0x%04X:0x%04X", bestName, best.SoftwareVersion, req.VendorID, req.ProductID)
	return QueryImageResponse{
		Status:                StatusUpdateAvailable,
		ImageURI:              bestName,
		SoftwareVersion:       best.SoftwareVersion,
		SoftwareVersionString: best.SoftwareVersionString,
	}, nil
}

func (p *DirProvider) readHeader(name string) (*Header, error) {
	f, err := os.Open(filepath.Join(p.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseHeader(f)
}

// Download implements Provider. uri is a file name returned by QueryImage.
func (p *DirProvider) Download(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(uri, "file://")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return os.Open(filepath.Join(p.dir, name))
}
