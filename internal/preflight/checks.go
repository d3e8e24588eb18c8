package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"b2pc/internal/services"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
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
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// RequireDirectory fails with ErrInvalidOption when path is not an existing
// directory.
func RequireDirectory(operation, name, path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return services.Wrap(services.ErrInvalidOption, operation, name, fmt.Sprintf("%s is not accessible", path), err)
	case !info.IsDir():
		return services.Wrap(services.ErrInvalidOption, operation, name, fmt.Sprintf("%s is not a directory", path), nil)
	}
	return nil
}

// RequireWritable fails with ErrInsufficientPermissions when the current user
// cannot create files in dir.
func RequireWritable(operation, dir string) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return services.Wrap(services.ErrInsufficientPermissions, operation, "permission check",
			fmt.Sprintf("%s is not writable", dir), err)
	}
	return nil
}
