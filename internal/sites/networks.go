package sites

import (
	"strings"

	"github.com/morikuni/failure/v2"
)

// Network describes one distribution network.
type Network struct {
	Name       string
	ListURL    string
	PrimaryURL string
	Kind       Kind
	Disabled   bool
	// Retired networks keep their parser but are never refreshed, whatever
	// the config or the command line asks for.
	Retired bool
}

// FileName is the name of the network's published mirror list.
func (n Network) FileName() string {
	return strings.ToLower(n.Name)
}

var builtin = []Network{
	{
		Name:       "Apache",
		ListURL:    "https://www.apache.org/mirrors/",
		PrimaryURL: "https://downloads.apache.org/",
		Kind:       KindApache,
	},
	{
		Name:       "CPAN",
		ListURL:    "https://www.cpan.org/MIRRORED.BY",
		PrimaryURL: "https://www.cpan.org/",
		Kind:       KindCPAN,
	},
	{
		Name:       "CTAN",
		ListURL:    "https://ctan.org/tex-archive/CTAN.sites",
		PrimaryURL: "https://mirrors.ctan.org/",
		Kind:       KindCTAN,
	},
	{
		Name:       "Debian",
		ListURL:    "https://www.debian.org/mirror/list",
		PrimaryURL: "http://deb.debian.org/debian/",
		Kind:       KindDebian,
	},
	{
		Name:       "FreeBSD",
		ListURL:    "https://docs.freebsd.org/en/books/handbook/mirrors/",
		PrimaryURL: "https://download.freebsd.org/",
		Kind:       KindFreeBSD,
	},
	{
		Name:       "Gimp",
		ListURL:    "https://www.gimp.org/downloads/mirrors/",
		PrimaryURL: "https://download.gimp.org/gimp/",
		Kind:       KindGimp,
	},
	{
		Name:       "GNOME",
		ListURL:    "https://download.gnome.org/MIRRORS",
		PrimaryURL: "https://download.gnome.org/",
		Kind:       KindGNOME,
	},
	{
		Name:       "GNU",
		ListURL:    "https://www.gnu.org/prep/ftp.html",
		PrimaryURL: "https://ftp.gnu.org/gnu/",
		Kind:       KindGNU,
	},
	{
		Name:       "KDE",
		ListURL:    "https://download.kde.org/extra/mirrors.html",
		PrimaryURL: "https://download.kde.org/",
		Kind:       KindKDE,
	},
	{
		Name:       "SourceForge",
		ListURL:    "https://sourceforge.net/p/forge/documentation/Mirrors/",
		PrimaryURL: "https://downloads.sourceforge.net/project/",
		Kind:       KindSourceForge,
	},
	{
		// Kept for reference; the published list no longer carries mirrors.
		Name:       "PostgreSQL",
		ListURL:    "https://www.postgresql.org/download/mirrors-ftp/",
		PrimaryURL: "https://ftp.postgresql.org/pub/",
		Kind:       KindPostgreSQL,
		Disabled:   true,
		Retired:    true,
	},
}

// Builtin returns a copy of the built-in network table.
func Builtin() []Network {
	out := make([]Network, len(builtin))
	copy(out, builtin)
	return out
}

// Lookup finds a built-in network by name, case-insensitively.
func Lookup(name string) (Network, error) {
	for _, n := range builtin {
		if strings.EqualFold(n.Name, name) {
			return n, nil
		}
	}
	return Network{}, failure.New(ErrUnknownNetwork,
		failure.Message("unknown network"),
		failure.Context{"name": name})
}
