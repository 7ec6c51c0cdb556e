// Command sectorfs manipulates sectorfs volume images from the shell: format
// a fresh image, inspect its layout, and copy files in and out.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dsalter/sectorfs/geometry"
	"github.com/dsalter/sectorfs/volume"
	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// environment carries the defaults picked up from SECTORFS_* variables, so
// scripts can set the image path once instead of repeating --image.
type environment struct {
	Image   string `default:"sectorfs.img"`
	Profile string `default:"classic"`
}

func main() {
	var env environment
	if err := envconfig.Process("sectorfs", &env); err != nil {
		fmt.Fprintf(os.Stderr, "bad SECTORFS_* environment: %s\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "sectorfs",
		Usage: "create and manipulate sectorfs volume images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the volume image",
				Value:   env.Image,
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage: "volume profile, one of: " +
					strings.Join(sortedSlugs(), ", "),
				Value: env.Profile,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every structural mutation",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "format",
				Usage:  "create a freshly formatted volume image",
				Action: cmdFormat,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "overwrite an existing image",
					},
				},
			},
			{
				Name:   "info",
				Usage:  "print the volume geometry and on-disk layout",
				Action: cmdInfo,
			},
			{
				Name:      "ls",
				Usage:     "list a directory",
				ArgsUsage: "[path]",
				Action:    cmdLs,
			},
			{
				Name:      "mkdir",
				Usage:     "create a directory",
				ArgsUsage: "path",
				Action:    mutating((*volume.Volume).Mkdir),
			},
			{
				Name:      "create",
				Usage:     "create an empty file",
				ArgsUsage: "path",
				Action:    mutating((*volume.Volume).CreateFile),
			},
			{
				Name:      "rm",
				Usage:     "remove a file",
				ArgsUsage: "path",
				Action:    mutating((*volume.Volume).Unlink),
			},
			{
				Name:      "rmdir",
				Usage:     "remove an empty directory",
				ArgsUsage: "path",
				Action:    mutating((*volume.Volume).Rmdir),
			},
			{
				Name:      "put",
				Usage:     "copy a local file into the volume",
				ArgsUsage: "local-path volume-path",
				Action:    cmdPut,
			},
			{
				Name:      "cat",
				Usage:     "write a volume file to standard output",
				ArgsUsage: "path",
				Action:    cmdCat,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sectorfs: %s\n", err)
		os.Exit(1)
	}
}

func sortedSlugs() []string {
	slugs := geometry.Slugs()
	sort.Strings(slugs)
	return slugs
}

func mount(c *cli.Context) (*volume.Volume, error) {
	profile, err := geometry.GetProfile(c.String("profile"))
	if err != nil {
		return nil, err
	}

	opts := []volume.Option{}
	if c.Bool("verbose") {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		opts = append(opts, volume.WithLogger(log))
	}
	return volume.Boot(c.String("image"), profile.Geometry(), opts...)
}

func onePathArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s takes exactly one path argument", c.Command.Name)
	}
	return c.Args().First(), nil
}

// mutating wraps a path-taking volume operation into a CLI action that
// mounts, applies, and syncs.
func mutating(op func(*volume.Volume, string) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		path, err := onePathArg(c)
		if err != nil {
			return err
		}
		vol, err := mount(c)
		if err != nil {
			return err
		}
		if err := op(vol, path); err != nil {
			return err
		}
		return vol.Sync()
	}
}

func cmdFormat(c *cli.Context) error {
	image := c.String("image")
	if _, err := os.Stat(image); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", image)
	}
	if err := os.Remove(image); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Booting against a missing backing store formats and saves it.
	if _, err := mount(c); err != nil {
		return err
	}
	fmt.Printf("formatted %s with profile %q\n", image, c.String("profile"))
	return nil
}

func cmdInfo(c *cli.Context) error {
	vol, err := mount(c)
	if err != nil {
		return err
	}

	geom := vol.Geometry()
	layout := vol.Layout()
	fmt.Printf("image:                %s\n", c.String("image"))
	fmt.Printf("sector size:          %d B\n", geom.SectorSize)
	fmt.Printf("total sectors:        %d\n", geom.TotalSectors)
	fmt.Printf("max files:            %d\n", geom.MaxFiles)
	fmt.Printf("max file size:        %d B\n", geom.MaxFileSize())
	fmt.Printf("open file slots:      %d\n", geom.MaxOpenFiles)
	fmt.Printf("inode bitmap:         sector %d (%d sectors)\n",
		layout.InodeBitmapStart, layout.InodeBitmapSectors)
	fmt.Printf("sector bitmap:        sector %d (%d sectors)\n",
		layout.SectorBitmapStart, layout.SectorBitmapSectors)
	fmt.Printf("inode table:          sector %d (%d sectors)\n",
		layout.InodeTableStart, layout.InodeTableSectors)
	fmt.Printf("first data sector:    %d\n", layout.FirstDataSector)
	return nil
}

func cmdLs(c *cli.Context) error {
	path := "/"
	if c.NArg() > 0 {
		path = c.Args().First()
	}

	vol, err := mount(c)
	if err != nil {
		return err
	}
	entries, err := vol.ReadDir(path, -1)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	for _, entry := range entries {
		fmt.Printf("%6d  %s\n", entry.Inode, entry.Name)
	}
	return nil
}

func cmdPut(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("put takes a local path and a volume path")
	}
	local, remote := c.Args().Get(0), c.Args().Get(1)

	contents, err := os.ReadFile(local)
	if err != nil {
		return err
	}

	vol, err := mount(c)
	if err != nil {
		return err
	}
	if err := vol.CreateFile(remote); err != nil {
		return err
	}

	fd, err := vol.OpenFile(remote)
	if err != nil {
		return err
	}
	if _, err := vol.Write(fd, contents); err != nil {
		return err
	}
	if err := vol.CloseFile(fd); err != nil {
		return err
	}
	return vol.Sync()
}

func cmdCat(c *cli.Context) error {
	path, err := onePathArg(c)
	if err != nil {
		return err
	}
	vol, err := mount(c)
	if err != nil {
		return err
	}

	fd, err := vol.OpenFile(path)
	if err != nil {
		return err
	}
	defer vol.CloseFile(fd)

	buf := make([]byte, 4096)
	for {
		n, err := vol.Read(fd, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil {
			return err
		}
	}
}
