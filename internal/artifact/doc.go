// Package artifact turns "a version identifier + a target platform" into a
// verified, executable, cached artifact directory.
//
// # Pipeline
//
// A request flows through four stages:
//
//  1. Platform gate: platform.Table.Resolve rejects unsupported hosts
//     before any network access.
//  2. Transport: a Transport fetches the compressed archive. The
//     RegistryTransport runs "npm pack" and reads the produced tarball
//     (the npm registry doubles as the CDN for platform payloads); the
//     URLTransport downloads upstream releases from a mirror, falling back
//     to an authenticated origin when a token is present. Transports never
//     retry.
//  3. Materializer: decompresses (gzip or zstd) and unpacks the tar stream,
//     replaces every symbolic link with a real copy of its target, and
//     restores the execute bit under bin/ and libexec/.
//  4. Cache: a completion marker written last makes later requests for the
//     same version return immediately. Without a marker the version
//     directory is discarded and rebuilt.
//
// # Layout
//
//	<cache-root>/<tool>/<version>/.prebuilt.json
//	<cache-root>/<tool>/<version>/package/<payload-root>/{bin,lib,...}
//
// # Errors
//
// Failures are classified with sentinel errors that callers test with
// errors.Is: ErrTransport, ErrCorruptArchive, ErrIO, ErrVersionRequired,
// and platform.ErrUnsupportedPlatform. Only chmod failures in the
// permission pass are logged and swallowed.
//
// # Usage
//
//	mgr, err := artifact.NewManager(artifact.Config{CacheRoot: root})
//	if err != nil {
//	    return err
//	}
//	path, err := mgr.GetArtifactPath(ctx, artifact.Request{
//	    Tool:    "python",
//	    Key:     platform.Key{OS: "linux", CPU: "x64"},
//	    Version: "3.9.13-install_only.1",
//	})
package artifact
