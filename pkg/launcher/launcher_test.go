package launcher

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/utils"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, args []string) (string, error) {
	ret := m.Called(args)
	return ret.String(0), ret.Error(1)
}

func (m *mockRunner) LookPath(name string) (string, error) {
	ret := m.Called(name)
	return ret.String(0), ret.Error(1)
}

const artifactPath = "/Users/me/Downloads/Update.dmg"

func newLauncher(t *testing.T, goos string) (Launcher, *mockRunner) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, artifactPath, []byte("image"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/Users/me/Downloads/setup.pkg", []byte("pkg"), 0644))
	r := &mockRunner{}
	return New(goos, fs, r, nil), r
}

func failed(exitCode int, stderr string) error {
	return &utils.CommandError{Args: []string{"cmd"}, ExitCode: exitCode, Stderr: stderr, Err: errors.New("exit status")}
}

func TestNewSelectsImplementation(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.IsType(t, &darwinLauncher{}, New("darwin", fs, ExecRunner{}, nil))
	assert.IsType(t, &windowsLauncher{}, New("windows", fs, ExecRunner{}, nil))
	assert.IsType(t, &unixLauncher{}, New("linux", fs, ExecRunner{}, nil))
	assert.IsType(t, &unixLauncher{}, New("freebsd", fs, ExecRunner{}, nil))
	assert.IsType(t, &unsupportedLauncher{}, New("plan9", fs, ExecRunner{}, nil))
}

func TestCommandLines(t *testing.T) {
	tests := []struct {
		goos   string
		action func(Launcher) error
		want   []string
	}{
		{"darwin", func(l Launcher) error { return l.Open(context.Background(), artifactPath) }, []string{"open", artifactPath}},
		{"darwin", func(l Launcher) error { return l.Reveal(context.Background(), artifactPath) }, []string{"open", "-R", artifactPath}},
		{"windows", func(l Launcher) error { return l.Open(context.Background(), artifactPath) }, []string{"explorer", artifactPath}},
		{"windows", func(l Launcher) error { return l.Reveal(context.Background(), artifactPath) }, []string{"explorer", "/select," + artifactPath}},
		{"linux", func(l Launcher) error { return l.Open(context.Background(), artifactPath) }, []string{"xdg-open", artifactPath}},
	}

	for _, tt := range tests {
		t.Run(tt.goos+" "+tt.want[0], func(t *testing.T) {
			l, r := newLauncher(t, tt.goos)
			r.On("Run", tt.want).Return("", nil).Once()

			require.NoError(t, tt.action(l))
			r.AssertExpectations(t)
		})
	}
}

func TestMissingArtifactIsNotDispatched(t *testing.T) {
	for _, goos := range []string{"darwin", "windows", "linux"} {
		l, r := newLauncher(t, goos)
		ctx := context.Background()

		assert.True(t, artifact.IsKind(l.Open(ctx, "/nope.dmg"), artifact.KindArtifactNotFound), goos)
		assert.True(t, artifact.IsKind(l.Reveal(ctx, "/nope.dmg"), artifact.KindArtifactNotFound), goos)
		assert.True(t, artifact.IsKind(l.Install(ctx, "/nope.dmg"), artifact.KindArtifactNotFound), goos)
		r.AssertNotCalled(t, "Run", mock.Anything)
	}
}

func TestSubprocessFailureCarriesStderr(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"open", artifactPath}).Return("", failed(1, "LSOpenURLsWithRole() failed"))

	err := l.Open(context.Background(), artifactPath)
	var ae *artifact.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, artifact.KindSubprocessError, ae.Kind)
	assert.Equal(t, "LSOpenURLsWithRole() failed", ae.Stderr)
}

func TestWindowsExplorerExitOneIsSuccess(t *testing.T) {
	l, r := newLauncher(t, "windows")
	r.On("Run", []string{"explorer", "/select," + artifactPath}).Return("", failed(1, "")).Once()
	assert.NoError(t, l.Reveal(context.Background(), artifactPath))

	r.On("Run", []string{"explorer", artifactPath}).Return("", failed(2, "boom")).Once()
	assert.True(t, artifact.IsKind(l.Open(context.Background(), artifactPath), artifact.KindSubprocessError))
}

func TestInstallUnsupportedOffDarwin(t *testing.T) {
	for _, goos := range []string{"windows", "linux"} {
		l, r := newLauncher(t, goos)
		err := l.Install(context.Background(), artifactPath)
		assert.True(t, artifact.IsKind(err, artifact.KindUnsupportedOperation), goos)
		r.AssertNotCalled(t, "Run", mock.Anything)
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	l, _ := newLauncher(t, "plan9")
	assert.True(t, artifact.IsKind(l.Open(context.Background(), artifactPath), artifact.KindUnsupportedOperation))
	assert.Contains(t, l.Reveal(context.Background(), artifactPath).Error(), "not available on plan9")
}

func TestLinuxRevealPrefersNautilus(t *testing.T) {
	l, r := newLauncher(t, "linux")
	r.On("LookPath", "nautilus").Return("/usr/bin/nautilus", nil).Once()
	r.On("Run", []string{"nautilus", "--select", artifactPath}).Return("", nil).Once()

	require.NoError(t, l.Reveal(context.Background(), artifactPath))
	r.AssertExpectations(t)
}

func TestLinuxRevealFallsBackToParent(t *testing.T) {
	l, r := newLauncher(t, "linux")
	r.On("LookPath", "nautilus").Return("", exec.ErrNotFound).Once()
	r.On("Run", []string{"xdg-open", "/Users/me/Downloads"}).Return("", nil).Once()

	require.NoError(t, l.Reveal(context.Background(), artifactPath))
	r.AssertExpectations(t)
}

const attachPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>system-entities</key>
	<array>
		<dict>
			<key>content-hint</key>
			<string>GUID_partition_scheme</string>
			<key>dev-entry</key>
			<string>/dev/disk4</string>
		</dict>
		<dict>
			<key>content-hint</key>
			<string>Apple_HFS</string>
			<key>dev-entry</key>
			<string>/dev/disk4s1</string>
			<key>mount-point</key>
			<string>/Volumes/Update</string>
		</dict>
	</array>
</dict>
</plist>`

func TestDarwinInstallMountsDiskImage(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"hdiutil", "attach", "-nobrowse", "-plist", artifactPath}).Return(attachPlist, nil).Once()
	r.On("Run", []string{"open", "/Volumes/Update"}).Return("", nil).Once()

	require.NoError(t, l.Install(context.Background(), artifactPath))
	r.AssertExpectations(t)
}

func TestDarwinInstallFallsBackWhenAttachFails(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"hdiutil", "attach", "-nobrowse", "-plist", artifactPath}).Return("", failed(1, "image not recognized")).Once()
	r.On("Run", []string{"open", artifactPath}).Return("", nil).Once()

	require.NoError(t, l.Install(context.Background(), artifactPath))
	r.AssertExpectations(t)
}

func TestDarwinInstallOpensOtherArtifacts(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"open", "/Users/me/Downloads/setup.pkg"}).Return("", nil).Once()

	require.NoError(t, l.Install(context.Background(), "/Users/me/Downloads/setup.pkg"))
	r.AssertExpectations(t)
}

func TestDarwinInstallDetachesImageWithoutMountPoint(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"hdiutil", "attach", "-nobrowse", "-plist", artifactPath}).Return(noMountPlist, nil).Once()
	r.On("Run", []string{"hdiutil", "detach", "/dev/disk4"}).Return("", nil).Once()
	r.On("Run", []string{"open", artifactPath}).Return("", nil).Once()

	require.NoError(t, l.Install(context.Background(), artifactPath))
	r.AssertExpectations(t)
}

func TestDarwinInstallDoesNotReopenAttachedImage(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"hdiutil", "attach", "-nobrowse", "-plist", artifactPath}).Return("garbled output", nil).Once()

	err := l.Install(context.Background(), artifactPath)
	assert.True(t, artifact.IsKind(err, artifact.KindSubprocessError), "%v", err)
	r.AssertExpectations(t)
	r.AssertNotCalled(t, "Run", []string{"open", artifactPath})
}

func TestDarwinInstallKeepsErrorWhenDetachFails(t *testing.T) {
	l, r := newLauncher(t, "darwin")
	r.On("Run", []string{"hdiutil", "attach", "-nobrowse", "-plist", artifactPath}).Return(noMountPlist, nil).Once()
	r.On("Run", []string{"hdiutil", "detach", "/dev/disk4"}).Return("", failed(16, "resource busy")).Once()

	err := l.Install(context.Background(), artifactPath)
	assert.True(t, artifact.IsKind(err, artifact.KindSubprocessError), "%v", err)
	r.AssertExpectations(t)
	r.AssertNotCalled(t, "Run", []string{"open", artifactPath})
}

const noMountPlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>system-entities</key>
	<array>
		<dict>
			<key>dev-entry</key>
			<string>/dev/disk4</string>
		</dict>
	</array>
</dict>
</plist>`

func TestParseAttach(t *testing.T) {
	info, err := parseAttach([]byte(attachPlist))
	require.NoError(t, err)
	assert.Equal(t, "/Volumes/Update", info.mountPoint)
	assert.Equal(t, "/dev/disk4", info.device)

	info, err = parseAttach([]byte(`<plist version="1.0"><dict><key>system-entities</key><array/></dict></plist>`))
	require.NoError(t, err)
	assert.Empty(t, info.mountPoint)

	_, err = parseAttach([]byte("not a plist"))
	assert.Error(t, err)
}
