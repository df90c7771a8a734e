package cloudprovider

import (
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Login users tried in order on ScyllaDB images. Which one exists depends on
// the base distribution the image was built from.
var scyllaSSHUsers = []string{"scyllaadm", "centos", "ubuntu", "ec2-user", "admin"}

// candidateKeyPaths lists private key files to try, most specific first. A
// named key pair is looked up under the usual extensions before falling back
// to the default identity files.
func candidateKeyPaths(keyName string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	sshDir := filepath.Join(home, ".ssh")

	var paths []string
	if keyName != "" {
		paths = append(paths,
			filepath.Join(sshDir, keyName+".pem"),
			filepath.Join(sshDir, keyName),
			filepath.Join(sshDir, keyName+".key"),
		)
	}
	return append(paths,
		filepath.Join(sshDir, "id_rsa"),
		filepath.Join(sshDir, "id_ed25519"),
		filepath.Join(sshDir, "id_ecdsa"),
	)
}

// loadSigners parses every readable candidate key. An empty result is not an
// error here; the connection attempt will fail with a clear message instead.
func loadSigners(keyName string) []ssh.Signer {
	var signers []ssh.Signer
	for _, p := range candidateKeyPaths(keyName) {
		buf, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(buf)
		if err != nil {
			slog.Debug("skipping unparsable SSH key", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("loaded SSH key", slog.String("path", p))
		signers = append(signers, signer)
	}
	return signers
}
