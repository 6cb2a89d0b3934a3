// Package packages implements the built-in package-manager providers and
// the registry that resolves them by name or by platform.
//
// Every provider drives its backend through a process.Runner; the exit
// status and captured output of the backend are the only success signal.
// Providers that change system state run their commands as privileged,
// which the exec runner turns into a sudo prefix when not running as root.
//
// Built-in providers:
//
//	aptitude (apt)   Debian, Ubuntu and derivatives
//	dnf (yum)        Fedora, RHEL, CentOS, Rocky, Alma
//	zypper           openSUSE, SLES
//	pacman           Arch and derivatives
//	homebrew (brew)  macOS
//	bsdpkg (pkg)     FreeBSD
//	winget           Windows
package packages
