package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrOnboardingIncomplete is the backend's signal that a verified identity
// has not finished profile completion. It is distinguished from genuine
// failures by response shape, never conflated with network errors.
var ErrOnboardingIncomplete = errors.New("usuarios.onboarding_incomplete")

// UsuarioService reads user profiles.
type UsuarioService struct {
	client *Client
}

// NewUsuarioService wraps the backend client.
func NewUsuarioService(client *Client) *UsuarioService {
	return &UsuarioService{client: client}
}

// Get fetches the profile for a subject. A 404 or an envelope whose mensaje
// marks onboarding as pending yields ErrOnboardingIncomplete.
func (service *UsuarioService) Get(ctx context.Context, bearerToken string, subject string) (Usuario, error) {
	var usuario Usuario
	mensaje, err := service.client.get(ctx, "/usuarios/"+subject, bearerToken, "usuario", &usuario)
	if isOnboardingSignal(err, mensaje) {
		return Usuario{}, fmt.Errorf("usuarios.get: %w", ErrOnboardingIncomplete)
	}
	if err != nil {
		return Usuario{}, fmt.Errorf("usuarios.get: %w", err)
	}
	return usuario, nil
}

func isOnboardingSignal(err error, mensaje string) bool {
	if strings.Contains(strings.ToLower(mensaje), "onboarding") {
		return true
	}
	return IsStatus(err, http.StatusNotFound)
}

// SucursalService reads affiliated businesses.
type SucursalService struct {
	client *Client
}

// NewSucursalService wraps the backend client.
func NewSucursalService(client *Client) *SucursalService {
	return &SucursalService{client: client}
}

// List returns every affiliated branch.
func (service *SucursalService) List(ctx context.Context, bearerToken string) ([]Sucursal, error) {
	var sucursales []Sucursal
	if _, err := service.client.get(ctx, "/sucursales", bearerToken, "sucursales", &sucursales); err != nil {
		return nil, fmt.Errorf("sucursales.list: %w", err)
	}
	return sucursales, nil
}

// ListForCliente returns the branches where the customer holds cards.
func (service *SucursalService) ListForCliente(ctx context.Context, bearerToken string) ([]Sucursal, error) {
	var sucursales []Sucursal
	if _, err := service.client.get(ctx, "/cliente/sucursales", bearerToken, "sucursales", &sucursales); err != nil {
		return nil, fmt.Errorf("sucursales.list_cliente: %w", err)
	}
	return sucursales, nil
}

// TarjetaService reads and mutates loyalty cards.
type TarjetaService struct {
	client *Client
}

// NewTarjetaService wraps the backend client.
func NewTarjetaService(client *Client) *TarjetaService {
	return &TarjetaService{client: client}
}

// List returns the customer's cards; activas selects /tarjetas/1 vs /tarjetas/0.
func (service *TarjetaService) List(ctx context.Context, bearerToken string, activas bool) ([]Tarjeta, error) {
	variant := "0"
	if activas {
		variant = "1"
	}
	var tarjetas []Tarjeta
	if _, err := service.client.get(ctx, "/tarjetas/"+variant, bearerToken, "tarjetas", &tarjetas); err != nil {
		return nil, fmt.Errorf("tarjetas.list: %w", err)
	}
	return tarjetas, nil
}

// Crear registers a new card and returns it with the backend mensaje.
func (service *TarjetaService) Crear(ctx context.Context, bearerToken string, request CrearTarjetaRequest) (Tarjeta, string, error) {
	var tarjeta Tarjeta
	mensaje, err := service.client.send(ctx, http.MethodPost, "/tarjeta", bearerToken, request, "tarjeta", &tarjeta)
	if err != nil {
		return Tarjeta{}, mensaje, fmt.Errorf("tarjetas.crear: %w", err)
	}
	return tarjeta, mensaje, nil
}

// Eliminar deletes a card by id and returns the backend mensaje.
func (service *TarjetaService) Eliminar(ctx context.Context, bearerToken string, tarjetaID int64) (string, error) {
	mensaje, err := service.client.send(ctx, http.MethodDelete, "/tarjetas/"+strconv.FormatInt(tarjetaID, 10), bearerToken, nil, "", nil)
	if err != nil {
		return mensaje, fmt.Errorf("tarjetas.eliminar: %w", err)
	}
	return mensaje, nil
}

// UbicacionService reads provinces and localities for the onboarding form.
type UbicacionService struct {
	client *Client
}

// NewUbicacionService wraps the backend client.
func NewUbicacionService(client *Client) *UbicacionService {
	return &UbicacionService{client: client}
}

// Provincias returns every province.
func (service *UbicacionService) Provincias(ctx context.Context, bearerToken string) ([]Provincia, error) {
	var provincias []Provincia
	if _, err := service.client.get(ctx, "/provincias", bearerToken, "provincias", &provincias); err != nil {
		return nil, fmt.Errorf("ubicaciones.provincias: %w", err)
	}
	return provincias, nil
}

// Localidades returns every locality.
func (service *UbicacionService) Localidades(ctx context.Context, bearerToken string) ([]Localidad, error) {
	var localidades []Localidad
	if _, err := service.client.get(ctx, "/localidades", bearerToken, "localidades", &localidades); err != nil {
		return nil, fmt.Errorf("ubicaciones.localidades: %w", err)
	}
	return localidades, nil
}

// CategoriaService reads product categories.
type CategoriaService struct {
	client *Client
}

// NewCategoriaService wraps the backend client.
func NewCategoriaService(client *Client) *CategoriaService {
	return &CategoriaService{client: client}
}

// List returns every product category.
func (service *CategoriaService) List(ctx context.Context, bearerToken string) ([]CategoriaProducto, error) {
	var categorias []CategoriaProducto
	if _, err := service.client.get(ctx, "/categorias_productos", bearerToken, "categorias_productos", &categorias); err != nil {
		return nil, fmt.Errorf("categorias.list: %w", err)
	}
	return categorias, nil
}
