package loopin

import (
	"context"
	"errors"
	"time"

	"github.com/Joapozzo/loopin-gateway/internal/query"
	"github.com/Joapozzo/loopin-gateway/internal/rest"
	"github.com/Joapozzo/loopin-gateway/internal/session"
)

// ErrNotAuthenticated indicates a resource read was attempted without an
// authenticated session.
var ErrNotAuthenticated = errors.New("loopin.not_authenticated")

// Cache policy defaults for backend resources.
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultGCTime    = 10 * time.Minute
	DefaultRetry     = 2
)

// Catalog exposes one cached accessor per backend resource. Reads go through
// the query cache; mutations call the backend directly and invalidate the
// affected keys only on success.
type Catalog struct {
	cache       *query.Cache
	store       *session.Store
	sucursales  *rest.SucursalService
	tarjetas    *rest.TarjetaService
	ubicaciones *rest.UbicacionService
	categorias  *rest.CategoriaService
}

// NewCatalog wires the query cache over the backend services for one
// principal's session.
func NewCatalog(cache *query.Cache, store *session.Store, client *rest.Client) *Catalog {
	return &Catalog{
		cache:       cache,
		store:       store,
		sucursales:  rest.NewSucursalService(client),
		tarjetas:    rest.NewTarjetaService(client),
		ubicaciones: rest.NewUbicacionService(client),
		categorias:  rest.NewCategoriaService(client),
	}
}

// credentials returns the subject and bearer token of the current session.
func (catalog *Catalog) credentials() (string, string, error) {
	state := catalog.store.Current()
	if !state.IsAuthenticated() {
		return "", "", ErrNotAuthenticated
	}
	return state.Identity().Subject, state.Token(), nil
}

func (catalog *Catalog) policy() query.Policy {
	return query.Policy{
		StaleTime: DefaultStaleTime,
		GCTime:    DefaultGCTime,
		Retry:     DefaultRetry,
		Enabled: func() bool {
			return catalog.store.Current().IsAuthenticated()
		},
	}
}

// Sucursales lists all affiliated branches. The listing is shared, so the
// key carries no subject.
func (catalog *Catalog) Sucursales(ctx context.Context) ([]rest.Sucursal, error) {
	_, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return nil, credErr
	}
	return query.Fetch(catalog.cache, ctx, query.NewKey("sucursales"), catalog.policy(), func(ctx context.Context) ([]rest.Sucursal, error) {
		return catalog.sucursales.List(ctx, bearerToken)
	})
}

// SucursalesCliente lists the branches adhered to by the current customer.
func (catalog *Catalog) SucursalesCliente(ctx context.Context) ([]rest.Sucursal, error) {
	subject, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return nil, credErr
	}
	return query.Fetch(catalog.cache, ctx, query.NewKey(subject, "sucursales", "cliente"), catalog.policy(), func(ctx context.Context) ([]rest.Sucursal, error) {
		return catalog.sucursales.ListForCliente(ctx, bearerToken)
	})
}

// TarjetasActivas lists the customer's active loyalty cards.
func (catalog *Catalog) TarjetasActivas(ctx context.Context) ([]rest.Tarjeta, error) {
	return catalog.tarjetasList(ctx, true)
}

// TarjetasInactivas lists the customer's inactive loyalty cards.
func (catalog *Catalog) TarjetasInactivas(ctx context.Context) ([]rest.Tarjeta, error) {
	return catalog.tarjetasList(ctx, false)
}

func (catalog *Catalog) tarjetasList(ctx context.Context, activas bool) ([]rest.Tarjeta, error) {
	subject, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return nil, credErr
	}
	return query.Fetch(catalog.cache, ctx, tarjetasKey(subject, activas), catalog.policy(), func(ctx context.Context) ([]rest.Tarjeta, error) {
		return catalog.tarjetas.List(ctx, bearerToken, activas)
	})
}

func tarjetasKey(subject string, activas bool) query.Key {
	variant := "inactivas"
	if activas {
		variant = "activas"
	}
	return query.NewKey(subject, "tarjetas", variant)
}

// Provincias lists the known provinces.
func (catalog *Catalog) Provincias(ctx context.Context) ([]rest.Provincia, error) {
	_, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return nil, credErr
	}
	return query.Fetch(catalog.cache, ctx, query.NewKey("provincias"), catalog.policy(), func(ctx context.Context) ([]rest.Provincia, error) {
		return catalog.ubicaciones.Provincias(ctx, bearerToken)
	})
}

// Localidades lists the known localities.
func (catalog *Catalog) Localidades(ctx context.Context) ([]rest.Localidad, error) {
	_, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return nil, credErr
	}
	return query.Fetch(catalog.cache, ctx, query.NewKey("localidades"), catalog.policy(), func(ctx context.Context) ([]rest.Localidad, error) {
		return catalog.ubicaciones.Localidades(ctx, bearerToken)
	})
}

// CategoriasProductos lists the product categories.
func (catalog *Catalog) CategoriasProductos(ctx context.Context) ([]rest.CategoriaProducto, error) {
	_, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return nil, credErr
	}
	return query.Fetch(catalog.cache, ctx, query.NewKey("categorias_productos"), catalog.policy(), func(ctx context.Context) ([]rest.CategoriaProducto, error) {
		return catalog.categorias.List(ctx, bearerToken)
	})
}

// CrearTarjeta creates a loyalty card and, on success, invalidates the
// customer's card listings so the next read observes it. The backend mensaje
// is returned for UI surfacing.
func (catalog *Catalog) CrearTarjeta(ctx context.Context, request rest.CrearTarjetaRequest) (rest.Tarjeta, string, error) {
	subject, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return rest.Tarjeta{}, "", credErr
	}
	tarjeta, mensaje, crearErr := catalog.tarjetas.Crear(ctx, bearerToken, request)
	if crearErr != nil {
		return rest.Tarjeta{}, mensaje, crearErr
	}
	catalog.invalidateTarjetas(subject)
	return tarjeta, mensaje, nil
}

// EliminarTarjeta deletes a loyalty card and, on success, invalidates the
// customer's card listings.
func (catalog *Catalog) EliminarTarjeta(ctx context.Context, tarjetaID int64) (string, error) {
	subject, bearerToken, credErr := catalog.credentials()
	if credErr != nil {
		return "", credErr
	}
	mensaje, eliminarErr := catalog.tarjetas.Eliminar(ctx, bearerToken, tarjetaID)
	if eliminarErr != nil {
		return mensaje, eliminarErr
	}
	catalog.invalidateTarjetas(subject)
	return mensaje, nil
}

func (catalog *Catalog) invalidateTarjetas(subject string) {
	catalog.cache.Invalidate(tarjetasKey(subject, true), tarjetasKey(subject, false))
}
