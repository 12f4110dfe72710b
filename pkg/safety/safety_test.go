package safety

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateInputPath_Traversal(t *testing.T) {
	for _, p := range []string{"../etc/passwd", "data/../../x.ttl", "..\\secret", "foo/..", ".."} {
		_, err := ValidateInputPath(p, PathOptions{})
		require.ErrorIs(t, err, ErrPathTraversal, p)
	}
}

func TestValidateInputPath_Empty(t *testing.T) {
	_, err := ValidateInputPath("   ", PathOptions{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateInputPath_NotFound(t *testing.T) {
	_, err := ValidateInputPath(filepath.Join(t.TempDir(), "missing.ttl"), PathOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidateInputPath_Symlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.ttl")
	require.NoError(t, os.WriteFile(target, []byte("@prefix : <#> ."), 0o600))
	link := filepath.Join(dir, "link.ttl")
	require.NoError(t, os.Symlink(target, link))

	_, err := ValidateInputPath(link, PathOptions{})
	require.ErrorIs(t, err, ErrSymlinkRejected)

	_, err = ValidateInputPath(target, PathOptions{})
	require.NoError(t, err)
}

func TestValidateInputPath_Extension(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	_, err := ValidateInputPath(p, PathOptions{AllowedExtensions: []string{".ttl", ".rdf"}})
	require.ErrorIs(t, err, ErrInvalidInput)

	q := filepath.Join(dir, "Store.MANIFEST.CDM.JSON")
	require.NoError(t, os.WriteFile(q, []byte("{}"), 0o600))
	_, err = ValidateInputPath(q, PathOptions{AllowedExtensions: []string{".manifest.cdm.json"}})
	require.NoError(t, err)
}

func TestValidateInputPath_AllowRelativeUpConfines(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	inside := filepath.Join(dir, "a.ttl")
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0o600))

	// ".." that stays inside the working directory is fine.
	got, err := ValidateInputPath(filepath.Join(sub, "..", "a.ttl"), PathOptions{AllowRelativeUp: true, WorkDir: dir})
	require.NoError(t, err)
	require.Equal(t, inside, got)

	// ".." that escapes it is not.
	_, err = ValidateInputPath(filepath.Join(dir, "..", "escape.ttl"), PathOptions{AllowRelativeUp: true, WorkDir: dir})
	require.ErrorIs(t, err, ErrOutsideWorkingDirectory)
}

func TestValidateOutputPath(t *testing.T) {
	dir := t.TempDir()
	_, err := ValidateOutputPath(filepath.Join(dir, "out.json"), PathOptions{AllowedExtensions: []string{".json"}})
	require.NoError(t, err)

	_, err = ValidateOutputPath(filepath.Join(dir, "nope", "out.json"), PathOptions{})
	require.ErrorIs(t, err, ErrNotFound)
}

func staticResolver(ips ...string) func(context.Context, string) ([]net.IP, error) {
	return func(context.Context, string) ([]net.IP, error) {
		out := make([]net.IP, len(ips))
		for i, s := range ips {
			out[i] = net.ParseIP(s)
		}
		return out, nil
	}
}

func TestValidateURL_SchemeAndPort(t *testing.T) {
	ctx := context.Background()
	err := ValidateURL(ctx, "http://example.com/x", URLOptions{LookupIP: staticResolver("93.184.216.34")})
	require.ErrorIs(t, err, ErrDisallowedScheme)

	err = ValidateURL(ctx, "https://example.com:8080/x", URLOptions{LookupIP: staticResolver("93.184.216.34")})
	require.ErrorIs(t, err, ErrDisallowedPort)

	err = ValidateURL(ctx, "https://example.com:8443/x", URLOptions{LookupIP: staticResolver("93.184.216.34")})
	require.NoError(t, err)
}

func TestValidateURL_PrivateAddresses(t *testing.T) {
	ctx := context.Background()
	for _, ip := range []string{"10.0.0.5", "172.16.1.1", "192.168.0.10", "127.0.0.1", "169.254.1.1", "224.0.0.1", "::1", "fe80::1", "fd00::42"} {
		err := ValidateURL(ctx, "https://internal.example/x", URLOptions{LookupIP: staticResolver(ip)})
		require.ErrorIs(t, err, ErrPrivateAddress, ip)
	}

	// Explicitly allowed private IPs pass.
	err := ValidateURL(ctx, "https://internal.example/x", URLOptions{AllowPrivateIPs: true, LookupIP: staticResolver("10.0.0.5")})
	require.NoError(t, err)
}

func TestValidateURL_LiteralIP(t *testing.T) {
	err := ValidateURL(context.Background(), "https://127.0.0.1/x", URLOptions{})
	require.ErrorIs(t, err, ErrPrivateAddress)
}

func TestValidateURL_DNSFailsClosed(t *testing.T) {
	failing := func(context.Context, string) ([]net.IP, error) {
		return nil, errors.New("NXDOMAIN")
	}
	err := ValidateURL(context.Background(), "https://gone.example/x", URLOptions{LookupIP: failing})
	require.ErrorIs(t, err, ErrPrivateAddress)
}

func TestValidateURL_DomainAllowlist(t *testing.T) {
	ctx := context.Background()
	opts := URLOptions{AllowedDomains: []string{"fabric.microsoft.com"}, LookupIP: staticResolver("93.184.216.34")}

	require.NoError(t, ValidateURL(ctx, "https://api.fabric.microsoft.com/v1", opts))
	require.ErrorIs(t, ValidateURL(ctx, "https://evil.example/v1", opts), ErrDomainNotAllowed)
}

func TestCheckMemory_WithinBudget(t *testing.T) {
	restore := availableMemory
	defer func() { availableMemory = restore }()
	availableMemory = func() (uint64, error) { return 8 * 1024 * 1024 * 1024, nil }

	p := filepath.Join(t.TempDir(), "small.ttl")
	require.NoError(t, os.WriteFile(p, make([]byte, 4096), 0o600))

	check, err := CheckMemory(p, false)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), check.FileBytes)
	require.Equal(t, uint64(4096*3.5), check.EstimatedBytes)
	require.Empty(t, check.Warnings)
}

func TestCheckMemory_ExceedsBudget(t *testing.T) {
	restore := availableMemory
	defer func() { availableMemory = restore }()
	// 300 MB free: above the 256 MB floor, but a 100 MB file estimates to
	// 350 MB which blows the 70% budget (210 MB).
	availableMemory = func() (uint64, error) { return 300 * 1024 * 1024, nil }

	p := filepath.Join(t.TempDir(), "big.ttl")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(100*1024*1024))
	require.NoError(t, f.Close())

	_, err = CheckMemory(p, false)
	require.ErrorIs(t, err, ErrMemoryExceeded)

	check, err := CheckMemory(p, true)
	require.NoError(t, err)
	require.NotEmpty(t, check.Warnings)
}

func TestCheckMemory_MetricsUnavailable(t *testing.T) {
	restore := availableMemory
	defer func() { availableMemory = restore }()
	availableMemory = func() (uint64, error) { return 0, errors.New("unsupported platform") }

	p := filepath.Join(t.TempDir(), "x.ttl")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	check, err := CheckMemory(p, false)
	require.NoError(t, err)
	require.NotEmpty(t, check.Warnings)
}
