package zones

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/geo"
)

// Command creates the zones command group for managing the zone registry.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Manage monitored zones",
	}

	cmd.AddCommand(listCommand(settings))
	cmd.AddCommand(addCommand(settings))
	cmd.AddCommand(importCommand(settings))

	return cmd
}

func openStore(settings *conf.Settings) (datastore.Interface, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no database backend enabled").
			Component("zones").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered zones",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			zones, err := store.GetZones("")
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tBBOX\tLAST REFRESHED")
			for i := range zones {
				refreshed := "never"
				if zones[i].LastRefreshedAt != nil {
					refreshed = zones[i].LastRefreshedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					zones[i].ID, zones[i].Name, zones[i].Priority, zones[i].BBox().String(), refreshed)
			}
			return w.Flush()
		},
	}
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var (
		name     string
		priority string
		bbox     []float64
	)

	cmd := &cobra.Command{
		Use:   "add [zone-id]",
		Short: "Add or update a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(bbox) != 4 {
				return errors.Newf("bbox needs exactly four values: west,south,east,north").
					Component("zones").
					Category(errors.CategoryValidation).
					Build()
			}

			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			box, err := geo.NewBBox(bbox[0], bbox[1], bbox[2], bbox[3])
			if err != nil {
				return err
			}

			zone := datastore.Zone{
				ID:       args[0],
				Name:     name,
				Priority: priority,
			}
			zone.SetBBox(box)
			if err := store.SaveZone(&zone); err != nil {
				return err
			}
			fmt.Printf("zone %s saved\n", zone.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable zone name")
	cmd.Flags().StringVar(&priority, "priority", datastore.PriorityNormal, "Zone priority (high or normal)")
	cmd.Flags().Float64SliceVar(&bbox, "bbox", nil, "Bounding box as west,south,east,north")
	_ = cmd.MarkFlagRequired("bbox")

	return cmd
}

// zoneFile is the YAML import format.
type zoneFile struct {
	Zones []struct {
		ID       string     `yaml:"id"`
		Name     string     `yaml:"name"`
		Priority string     `yaml:"priority"`
		BBox     [4]float64 `yaml:"bbox"` // west, south, east, north
	} `yaml:"zones"`
}

func importCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import [zones.yaml]",
		Short: "Import zones from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.New(err).
					Component("zones").
					Category(errors.CategoryFileIO).
					Context("path", args[0]).
					Build()
			}

			var file zoneFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return errors.New(err).
					Component("zones").
					Category(errors.CategoryValidation).
					Context("path", args[0]).
					Build()
			}

			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, entry := range file.Zones {
				zone := datastore.Zone{
					ID:       entry.ID,
					Name:     entry.Name,
					Priority: entry.Priority,
				}
				if zone.Priority == "" {
					zone.Priority = datastore.PriorityNormal
				}
				box, err := geo.NewBBox(entry.BBox[0], entry.BBox[1], entry.BBox[2], entry.BBox[3])
				if err != nil {
					return errors.New(err).
						Component("zones").
						Category(errors.CategoryValidation).
						Context("zone_id", entry.ID).
						Build()
				}
				zone.SetBBox(box)
				if err := store.SaveZone(&zone); err != nil {
					return errors.New(err).
						Component("zones").
						Category(errors.CategoryValidation).
						Context("zone_id", entry.ID).
						Build()
				}
			}
			fmt.Printf("imported %d zones\n", len(file.Zones))
			return nil
		},
	}
}
