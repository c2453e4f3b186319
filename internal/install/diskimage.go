package install

import (
	"context"
	"fmt"

	"gomunki/pkg/plist"
)

// mountImage attaches a disk image and returns its mountpoint. If the image
// is already attached its existing mountpoint is reused; alreadyMounted tells
// the caller whether unmounting is its responsibility.
func (e *Executor) mountImage(ctx context.Context, dmgPath string) (mountpoint string, alreadyMounted bool, err error) {
	if mp, err := e.currentMountpoint(ctx, dmgPath); err == nil && mp != "" {
		e.log.Debugf("%s already attached at %s", dmgPath, mp)
		return mp, true, nil
	}

	result, err := e.Runner.Run(ctx, "/usr/bin/hdiutil", []string{
		"attach", dmgPath,
		"-mountRandom", "/tmp",
		"-nobrowse",
		"-plist",
	}, RunOptions{})
	if err != nil {
		return "", false, fmt.Errorf("attach %s: %w (%s)", dmgPath, err, string(result.Stderr))
	}

	doc, err := plist.Unmarshal(result.Stdout)
	if err != nil {
		return "", false, fmt.Errorf("attach %s: parsing hdiutil output: %w", dmgPath, err)
	}
	for _, entity := range doc.DictSlice("system-entities") {
		if mp, ok := entity.String("mount-point"); ok && mp != "" {
			return mp, false, nil
		}
	}
	return "", false, fmt.Errorf("attach %s: no mountpoint in hdiutil output", dmgPath)
}

// currentMountpoint consults hdiutil info for an existing attachment of the
// image at dmgPath.
func (e *Executor) currentMountpoint(ctx context.Context, dmgPath string) (string, error) {
	result, err := e.Runner.Run(ctx, "/usr/bin/hdiutil", []string{"info", "-plist"}, RunOptions{})
	if err != nil {
		return "", err
	}
	doc, err := plist.Unmarshal(result.Stdout)
	if err != nil {
		return "", err
	}
	for _, image := range doc.DictSlice("images") {
		if path, _ := image.String("image-path"); path != dmgPath {
			continue
		}
		for _, entity := range image.DictSlice("system-entities") {
			if mp, ok := entity.String("mount-point"); ok && mp != "" {
				return mp, nil
			}
		}
	}
	return "", nil
}

func (e *Executor) unmountImage(ctx context.Context, mountpoint string) error {
	result, err := e.Runner.Run(ctx, "/usr/bin/hdiutil", []string{"detach", mountpoint, "-force"}, RunOptions{})
	if err != nil {
		return fmt.Errorf("detach %s: %w (%s)", mountpoint, err, string(result.Stderr))
	}
	return nil
}
