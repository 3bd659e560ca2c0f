package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"golang.org/x/sys/unix"

	"fbicheck/internal/config"
)

const checkTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckIndex verifies that the first reachable Elasticsearch address answers
// and accepts the configured credentials.
func CheckIndex(ctx context.Context, idx config.Index) Result {
	const name = "Elasticsearch"

	if len(idx.Addresses) == 0 {
		return Result{Name: name, Detail: "no addresses configured"}
	}

	var lastDetail string
	for _, addr := range idx.Addresses {
		client := req.C().SetTimeout(checkTimeout)
		switch {
		case idx.APIKey != "":
			client.SetCommonHeader("Authorization", "ApiKey "+idx.APIKey)
		case idx.Username != "":
			client.SetCommonBasicAuth(idx.Username, idx.Password)
		}
		resp, err := client.R().SetContext(ctx).Get(strings.TrimRight(addr, "/") + "/")
		if err != nil {
			lastDetail = fmt.Sprintf("%s unreachable (%s)", addr, summarizeError(err))
			continue
		}
		switch resp.StatusCode {
		case http.StatusOK:
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", addr)}
		case http.StatusUnauthorized, http.StatusForbidden:
			return Result{Name: name, Detail: fmt.Sprintf("%s auth failed (%d)", addr, resp.StatusCode)}
		default:
			lastDetail = fmt.Sprintf("%s returned %d", addr, resp.StatusCode)
		}
	}
	return Result{Name: name, Detail: lastDetail}
}

// CheckCatalog verifies that the spot catalog URL can be fetched.
func CheckCatalog(ctx context.Context, url string) Result {
	const name = "Spot catalog"

	if strings.TrimSpace(url) == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	resp, err := req.C().SetTimeout(checkTimeout).R().SetContext(ctx).Head(url)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%s)", summarizeError(err))}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{Name: name, Detail: fmt.Sprintf("returned %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
